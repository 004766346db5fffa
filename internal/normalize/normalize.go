// Package normalize cleans raw IPTV stream names into a stable form the
// classifier and matchers can work with. The pipeline order is load-bearing:
// mojibake repair precedes everything that assumes valid UTF-8, accent folding
// precedes city aliasing, and datetime masking precedes whitespace collapse so
// later regexes never mistake a date or kickoff time for content.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Version tags the normalization rules. Cached fingerprints made under a
// different version are treated as misses.
const Version = 3

// Mask tokens substituted for extracted date and time spans.
const (
	DateMask = "DATE_MASK"
	TimeMask = "TIME_MASK"
)

// Result is the cleaned form of one raw stream name plus anything extracted
// along the way. The zero value represents empty input.
type Result struct {
	Original string
	Clean    string // folded, prefix-stripped, datetime-masked
	Prefix   string // provider prefix removed from the front, "" when none

	Date    time.Time // civil date of an extracted date token, midnight UTC
	HasDate bool

	Clock    int // minutes from midnight for an extracted time token
	HasClock bool
}

// ClockSeconds returns the extracted time as seconds from midnight, or -1.
func (r Result) ClockSeconds() int {
	if !r.HasClock {
		return -1
	}
	return r.Clock * 60
}

// Normalizer runs the cleaning pipeline. Safe for concurrent use; the only
// state is the injected clock used for year inference on month/day dates.
type Normalizer struct {
	now func() time.Time
}

func New() *Normalizer {
	return &Normalizer{now: time.Now}
}

// NewAt pins the reference clock. Tests use this.
func NewAt(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Normalize cleans one raw stream name. It never fails; unparseable input
// passes through the remaining stages untouched.
func (n *Normalizer) Normalize(raw string) Result {
	res := Result{Original: raw}
	s := strings.TrimSpace(raw)
	if s == "" {
		return res
	}

	s = newlineReplacer.Replace(s)
	s = mojibakeReplacer.Replace(s)
	s, res.Prefix = stripProviderPrefix(s)
	s = FoldAccents(s)
	s = aliasCities(s)
	s, res.Date, res.HasDate = n.extractDate(s)
	s, res.Clock, res.HasClock = extractClock(s)
	res.Clean = collapse(s)
	return res
}

// Fingerprint is the stable cache key form of a stream name: the cleaned,
// masked name lowered with punctuation flattened. Two names differing only
// in kickoff time or date collapse to one fingerprint. Stable across
// restarts for the same Version.
func (n *Normalizer) Fingerprint(raw string) string {
	return ForMatching(n.Normalize(raw).Clean)
}

// ForMatching lowers a cleaned name into the form the fuzzy matcher and the
// team cache compare against: lowercase, punctuation to spaces, collapsed.
func ForMatching(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return collapse(b.String())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ---------------------------------------------------------------------------
// Stage 1-2: newlines and mojibake

var newlineReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

// Double-encoded UTF-8 sequences seen in provider playlists. Longer sequences
// first so the replacer never leaves a dangling lead byte.
var mojibakeReplacer = strings.NewReplacer(
	"â€™", "'",
	"â€˜", "'",
	"â€œ", "\"",
	"â€", "\"",
	"â€“", "-",
	"â€”", "-",
	"Ã¡", "á",
	"Ã©", "é",
	"Ã­", "í",
	"Ã³", "ó",
	"Ãº", "ú",
	"Ã¤", "ä",
	"Ã¶", "ö",
	"Ã¼", "ü",
	"Ã±", "ñ",
	"Ã§", "ç",
	"Ã£", "ã",
	"Ãµ", "õ",
	"Ã¨", "è",
	"Ãª", "ê",
	"Ã´", "ô",
	"Ã¥", "å",
	"Ã¸", "ø",
	"Ã†", "Æ",
	"Ã‰", "É",
	"Ãœ", "Ü",
	"Ã–", "Ö",
	"Ã„", "Ä",
	"ï¿½", "",
	"Â", "",
)

// ---------------------------------------------------------------------------
// Stage 3: provider prefixes

// Brand prefixes providers stick in front of event names. Matched
// case-insensitively at the start of the name, longest first, and only when
// followed by a separator or end of string.
var providerPrefixes = []string{
	"UFC FIGHT PASS",
	"FANDUEL SPORTS",
	"NBA LEAGUE PASS",
	"AMAZON PRIME",
	"PRIME VIDEO",
	"NFL NETWORK",
	"MLB NETWORK",
	"NHL NETWORK",
	"TNT SPORTS",
	"SKY SPORTS",
	"FOX SPORTS",
	"BEIN SPORTS",
	"SPORTSNET",
	"BT SPORT",
	"PARAMOUNT+",
	"PEACOCK",
	"VIAPLAY",
	"WILLOW",
	"ESPN+",
	"ESPNU",
	"ESPN",
	"DAZN",
	"FUBO",
	"TSN+",
	"TSN",
	"FS1",
	"FS2",
	"PPV",
}

var prefixesByLength = func() []string {
	out := append([]string(nil), providerPrefixes...)
	// insertion sort, longest first; the table is tiny
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && len(out[j]) > len(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}()

func stripProviderPrefix(s string) (rest, prefix string) {
	trimmed := strings.TrimSpace(s)
	for _, p := range prefixesByLength {
		if len(trimmed) < len(p) || !strings.EqualFold(trimmed[:len(p)], p) {
			continue
		}
		tail := trimmed[len(p):]
		if tail != "" && !isPrefixBoundary(tail[0]) {
			continue // "ESPNEWS ..." must not lose "ESPN"
		}
		tail = strings.TrimLeft(tail, " :|-•")
		if tail == "" {
			return trimmed, "" // the whole name is the brand; leave it
		}
		return tail, trimmed[:len(p)]
	}
	return trimmed, ""
}

func isPrefixBoundary(b byte) bool {
	switch b {
	case ' ', ':', '|', '-', '.', ',':
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Stage 4: accent fold, then city aliases

// FoldAccents decomposes to NFD, drops combining marks, and maps the handful
// of letters NFD leaves alone.
func FoldAccents(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		switch r {
		case 'ø':
			b.WriteByte('o')
		case 'Ø':
			b.WriteByte('O')
		case 'ß':
			b.WriteString("ss")
		case 'æ':
			b.WriteString("ae")
		case 'Æ':
			b.WriteString("Ae")
		case 'đ':
			b.WriteByte('d')
		case 'Đ':
			b.WriteByte('D')
		case 'ł':
			b.WriteByte('l')
		case 'Ł':
			b.WriteByte('L')
		case 'þ':
			b.WriteString("th")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Multilingual city spellings folded to the form the team cache uses.
// Keys are post-fold lowercase words; club names that happen to be city
// names in provider data (Sevilla, Roma, Torino) are deliberately absent.
var cityAliases = map[string]string{
	"munchen":   "munich",
	"muenchen":  "munich",
	"koln":      "cologne",
	"koeln":     "cologne",
	"milano":    "milan",
	"lisboa":    "lisbon",
	"bruxelles": "brussels",
	"praha":     "prague",
	"warszawa":  "warsaw",
	"moskva":    "moscow",
	"wien":      "vienna",
	"geneve":    "geneva",
	"athina":    "athens",
	"bucuresti": "bucharest",
}

func aliasCities(s string) string {
	fields := strings.Fields(s)
	changed := false
	for i, f := range fields {
		if alias, ok := cityAliases[strings.ToLower(f)]; ok {
			fields[i] = matchCase(f, alias)
			changed = true
		}
	}
	if !changed {
		return s
	}
	return strings.Join(fields, " ")
}

// matchCase re-applies the leading capitalization of src onto alias.
func matchCase(src, alias string) string {
	if src == "" || alias == "" {
		return alias
	}
	r := []rune(src)[0]
	if unicode.IsUpper(r) {
		return strings.ToUpper(alias[:1]) + alias[1:]
	}
	return alias
}

// ---------------------------------------------------------------------------
// Stage 5: datetime extraction and masking

// Date patterns in priority order: ISO first so "2026-01-09" is never read
// as month 2026, full US dates before year-less ones, and day-first before
// month-first so "14 Jan" wins over a trailing "Jan 11".
var (
	monthPat = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`

	isoDateRe    = regexp.MustCompile(`\b(\d{4})[-/](\d{1,2})[-/](\d{1,2})\b`)
	usYearRe     = regexp.MustCompile(`\b(\d{1,2})[-/](\d{1,2})[-/](\d{2,4})\b`)
	usNoYearRe   = regexp.MustCompile(`\b(\d{1,2})[-/](\d{1,2})\b`)
	dayFirstRe   = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(` + monthPat + `)\b\.?(?:[ ,]+(\d{4}))?`)
	monthFirstRe = regexp.MustCompile(`(?i)\b(` + monthPat + `)\b\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:[ ,]+(\d{4}))?`)

	clockMinutesRe = regexp.MustCompile(`(?i)\b(\d{1,2}):([0-5]\d)\s*(am|pm)?\b`)
	clockHourRe    = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(am|pm)\b`)
)

var monthNumbers = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

func monthFromName(name string) (time.Month, bool) {
	key := strings.ToLower(name)
	if len(key) > 3 {
		key = key[:3]
	}
	m, ok := monthNumbers[key]
	return m, ok
}

// extractDate tries the date patterns in priority order. The first pattern
// that matches wins: its span is masked even when the digits turn out not to
// be a real date, so score-like tokens never leak into separator detection.
func (n *Normalizer) extractDate(s string) (string, time.Time, bool) {
	if m := isoDateRe.FindStringSubmatchIndex(s); m != nil {
		y, _ := strconv.Atoi(s[m[2]:m[3]])
		mo, _ := strconv.Atoi(s[m[4]:m[5]])
		d, _ := strconv.Atoi(s[m[6]:m[7]])
		dt, ok := civilDate(y, time.Month(mo), d)
		return maskSpan(s, m[0], m[1], DateMask), dt, ok
	}
	if m := usYearRe.FindStringSubmatchIndex(s); m != nil {
		mo, _ := strconv.Atoi(s[m[2]:m[3]])
		d, _ := strconv.Atoi(s[m[4]:m[5]])
		y, _ := strconv.Atoi(s[m[6]:m[7]])
		if y < 100 {
			if y < 50 {
				y += 2000
			} else {
				y += 1900
			}
		}
		dt, ok := civilDate(y, time.Month(mo), d)
		return maskSpan(s, m[0], m[1], DateMask), dt, ok
	}
	if m := usNoYearRe.FindStringSubmatchIndex(s); m != nil {
		mo, _ := strconv.Atoi(s[m[2]:m[3]])
		d, _ := strconv.Atoi(s[m[4]:m[5]])
		dt, ok := n.inferYear(time.Month(mo), d)
		return maskSpan(s, m[0], m[1], DateMask), dt, ok
	}
	if m := dayFirstRe.FindStringSubmatchIndex(s); m != nil {
		d, _ := strconv.Atoi(s[m[2]:m[3]])
		mo, monthOK := monthFromName(s[m[4]:m[5]])
		if monthOK {
			dt, ok := n.resolveNamedMonth(s, m, mo, d)
			return maskSpan(s, m[0], m[1], DateMask), dt, ok
		}
	}
	for _, m := range monthFirstRe.FindAllStringSubmatchIndex(s, -1) {
		// "Jan 11:45pm" is a time, not January 11th. RE2 has no lookahead,
		// so peek at the byte after the day digits instead.
		if next := m[5]; next < len(s) && s[next] == ':' {
			continue
		}
		mo, monthOK := monthFromName(s[m[2]:m[3]])
		if !monthOK {
			continue
		}
		d, _ := strconv.Atoi(s[m[4]:m[5]])
		dt, ok := n.resolveNamedMonth(s, m, mo, d)
		return maskSpan(s, m[0], m[1], DateMask), dt, ok
	}
	return s, time.Time{}, false
}

func maskSpan(s string, start, end int, mask string) string {
	return s[:start] + " " + mask + " " + s[end:]
}

func (n *Normalizer) resolveNamedMonth(s string, m []int, mo time.Month, d int) (time.Time, bool) {
	if m[6] >= 0 {
		y, _ := strconv.Atoi(s[m[6]:m[7]])
		return civilDate(y, mo, d)
	}
	return n.inferYear(mo, d)
}

// inferYear picks the year that lands the month/day within half a year of
// now. A December date seen in January belongs to last month, not eleven
// months out.
func (n *Normalizer) inferYear(mo time.Month, d int) (time.Time, bool) {
	now := n.now().UTC()
	var best time.Time
	bestDiff := time.Duration(1<<63 - 1)
	for _, y := range []int{now.Year() - 1, now.Year(), now.Year() + 1} {
		dt, ok := civilDate(y, mo, d)
		if !ok {
			continue
		}
		diff := dt.Sub(now)
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			best, bestDiff = dt, diff
		}
	}
	if best.IsZero() || bestDiff > 183*24*time.Hour {
		return time.Time{}, false
	}
	return best, true
}

func civilDate(y int, mo time.Month, d int) (time.Time, bool) {
	if y < 1900 || y > 2200 || mo < 1 || mo > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	dt := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
	if dt.Month() != mo || dt.Day() != d {
		return time.Time{}, false // 02/31 normalizes away
	}
	return dt, true
}

// extractClock tries the time patterns in priority order: hour:minutes with
// an optional meridiem, then a bare hour with a required one. As with dates,
// a matched span is masked even when the hour fails validation.
func extractClock(s string) (string, int, bool) {
	if m := clockMinutesRe.FindStringSubmatchIndex(s); m != nil {
		h, _ := strconv.Atoi(s[m[2]:m[3]])
		mi, _ := strconv.Atoi(s[m[4]:m[5]])
		meridiem := ""
		if m[6] >= 0 {
			meridiem = s[m[6]:m[7]]
		}
		minutes, ok := clockMinutes(h, mi, meridiem)
		return maskSpan(s, m[0], m[1], TimeMask), minutes, ok
	}
	if m := clockHourRe.FindStringSubmatchIndex(s); m != nil {
		h, _ := strconv.Atoi(s[m[2]:m[3]])
		minutes, ok := clockMinutes(h, 0, s[m[4]:m[5]])
		return maskSpan(s, m[0], m[1], TimeMask), minutes, ok
	}
	return s, 0, false
}

func clockMinutes(h, minutes int, meridiem string) (int, bool) {
	switch {
	case meridiem == "":
		if h > 23 {
			return 0, false
		}
	case h < 1 || h > 12:
		return 0, false
	default:
		h = h % 12
		if strings.EqualFold(meridiem, "pm") {
			h += 12
		}
	}
	return h*60 + minutes, true
}
