package match

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	fuzz "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/snapetech/eventarr/internal/normalize"
	"github.com/snapetech/eventarr/internal/sports"
)

// minSubstringLen guards the substring strategy: "chi" must not match inside
// "chicago" when the stream is about a different Chicago team. Shorter
// patterns fall back to word-boundary matching.
const minSubstringLen = 5

// ratioCutoff is the boolean floor for token-set and partial ratio hits.
const ratioCutoff = 90

// Abbreviations expanded in stream text before scoring, longest first so
// "ufc fn" wins over "fn".
var abbreviations = []struct{ from, to string }{
	{"ufc fn", "ufc fight night"},
	{"ppv", "pay per view"},
	{"fn", "fight night"},
	{"vs", "versus"},
	{"v", "versus"},
}

// Mascot and suffix words stripped from team names to produce the bare
// city/school pattern. Multi-word entries strip from the end as a unit.
var mascotWords = map[string]struct{}{
	"team": {}, "club": {}, "fc": {}, "sc": {}, "cf": {}, "united": {}, "city": {},

	"eagles": {}, "owls": {}, "lions": {}, "tigers": {}, "bears": {}, "wolves": {},
	"hawks": {}, "falcons": {}, "panthers": {}, "jaguars": {}, "bengals": {},
	"colts": {}, "broncos": {}, "chargers": {}, "raiders": {}, "ravens": {},
	"cardinals": {}, "seahawks": {}, "dolphins": {}, "bills": {}, "jets": {},
	"giants": {}, "patriots": {}, "steelers": {}, "browns": {}, "packers": {},
	"vikings": {}, "saints": {}, "buccaneers": {}, "cowboys": {}, "commanders": {},
	"49ers": {}, "rams": {}, "chiefs": {}, "texans": {}, "titans": {},

	"cavaliers": {}, "celtics": {}, "bulls": {}, "pistons": {}, "pacers": {},
	"heat": {}, "magic": {}, "hornets": {}, "wizards": {}, "knicks": {},
	"nets": {}, "76ers": {}, "sixers": {}, "raptors": {}, "bucks": {},
	"timberwolves": {}, "thunder": {}, "blazers": {}, "warriors": {}, "kings": {},
	"lakers": {}, "clippers": {}, "suns": {}, "nuggets": {}, "jazz": {},
	"grizzlies": {}, "pelicans": {}, "spurs": {}, "mavericks": {}, "rockets": {},

	"bruins": {}, "canadiens": {}, "red wings": {}, "blackhawks": {}, "blues": {},
	"avalanche": {}, "stars": {}, "wild": {}, "predators": {}, "hurricanes": {},
	"lightning": {}, "rangers": {}, "islanders": {}, "devils": {}, "flyers": {},
	"penguins": {}, "capitals": {}, "blue jackets": {}, "senators": {},
	"maple leafs": {}, "sabres": {}, "kraken": {}, "golden knights": {},
	"flames": {}, "oilers": {}, "canucks": {}, "sharks": {}, "ducks": {},
	"coyotes": {},

	"bulldogs": {}, "wildcats": {}, "huskies": {}, "cougars": {}, "badgers": {},
	"gophers": {}, "wolverines": {}, "buckeyes": {}, "spartans": {}, "hoosiers": {},
	"boilermakers": {}, "hawkeyes": {}, "cornhuskers": {}, "cyclones": {},
	"jayhawks": {}, "sooners": {}, "longhorns": {}, "aggies": {}, "razorbacks": {},
	"volunteers": {}, "commodores": {}, "crimson tide": {}, "gators": {},
	"seminoles": {}, "yellow jackets": {}, "tar heels": {}, "wolfpack": {},
	"hokies": {}, "terrapins": {}, "nittany lions": {}, "orange": {},
	"mountaineers": {}, "red raiders": {}, "horned frogs": {}, "mustangs": {},
	"golden eagles": {}, "blue devils": {}, "demon deacons": {},
	"fighting irish": {}, "trojans": {}, "beavers": {}, "sun devils": {},
	"buffaloes": {}, "utes": {}, "rebels": {}, "aztecs": {},
	"rainbow warriors": {}, "black knights": {},

	"rovers": {}, "wanderers": {}, "albion": {}, "athletic": {}, "sporting": {},
	"real": {}, "dynamo": {}, "racing": {}, "deportivo": {}, "atletico": {},
	"inter": {}, "ac": {}, "as": {}, "ss": {}, "us": {},
}

var multiWordMascots = func() []string {
	var out []string
	for m := range mascotWords {
		if strings.Contains(m, " ") {
			out = append(out, m)
		}
	}
	// longest first, then lexical for determinism
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}()

// Fuzzy compares stream-side text against generated team patterns. Compiled
// word-boundary regexps are cached; the cache is read-mostly and only grows.
type Fuzzy struct {
	mu       sync.RWMutex
	boundary map[string]*regexp.Regexp
}

func NewFuzzy() *Fuzzy {
	return &Fuzzy{boundary: make(map[string]*regexp.Regexp)}
}

// TeamPatterns generates the comparable forms of one team in priority order:
// full name, name with the mascot stripped, short name, abbreviation, all
// folded into matching form, deduped, two characters minimum.
func TeamPatterns(t sports.Team) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(v string) {
		p := normalize.ForMatching(normalize.FoldAccents(v))
		if len(p) < 2 {
			return
		}
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	add(t.Name)
	if t.Name != "" {
		add(StripMascot(t.Name))
	}
	add(t.ShortName)
	add(t.Abbreviation)
	return out
}

// StripMascot removes the mascot words from a team name: one multi-word
// mascot off the end first, then every known single mascot word. When
// everything would be stripped the name comes back unchanged.
func StripMascot(name string) string {
	lower := strings.ToLower(name)
	for _, m := range multiWordMascots {
		if strings.HasSuffix(lower, " "+m) {
			name = name[:len(name)-len(m)-1]
			break
		}
	}
	var kept []string
	for _, w := range strings.Fields(name) {
		clean := strings.ToLower(strings.Trim(w, `'".,`))
		if _, mascot := mascotWords[clean]; mascot {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		return name
	}
	return strings.Join(kept, " ")
}

// ExpandAbbreviations rewrites known shorthand in stream text, longest entry
// first, on word boundaries. Input and output are matching-form lowercase.
func (f *Fuzzy) ExpandAbbreviations(text string) string {
	for _, a := range abbreviations {
		re := f.boundaryRe(a.from)
		if re.MatchString(text) {
			text = re.ReplaceAllString(text, a.to)
		}
	}
	return text
}

// SideScore rates how well text matches any of a team's patterns, 0-100.
// Strategies run in order across all patterns: substring for patterns of
// five or more characters, word-boundary for shorter ones, then token-set
// and partial ratios for the longer patterns only.
func (f *Fuzzy) SideScore(text string, patterns []string) int {
	if text == "" || len(patterns) == 0 {
		return 0
	}
	text = f.ExpandAbbreviations(text)

	for _, p := range patterns {
		if len(p) >= minSubstringLen && strings.Contains(text, p) {
			return 100
		}
	}
	for _, p := range patterns {
		if len(p) < minSubstringLen && f.boundaryRe(p).MatchString(text) {
			return 100
		}
	}
	best := 0
	for _, p := range patterns {
		if len(p) < minSubstringLen {
			continue
		}
		if s := fuzz.TokenSetRatio(text, p); s > best {
			best = s
		}
	}
	for _, p := range patterns {
		if len(p) < minSubstringLen {
			continue
		}
		if s := fuzz.PartialRatio(text, p); s > best {
			best = s
		}
	}
	return best
}

// MatchesAny reports whether text matches any pattern: exact strategies at
// any strength, ratio strategies at the boolean cutoff.
func (f *Fuzzy) MatchesAny(text string, patterns []string) bool {
	s := f.SideScore(text, patterns)
	return s == 100 || s >= ratioCutoff
}

// BestMatch picks the candidate most similar to pattern, taking the best of
// plain, token-set, and partial ratios. Below the threshold returns "".
func (f *Fuzzy) BestMatch(pattern string, candidates []string, threshold int) (string, int) {
	pattern = strings.ToLower(pattern)
	best, bestScore := "", 0
	for _, c := range candidates {
		cl := strings.ToLower(c)
		score := fuzz.Ratio(pattern, cl)
		if s := fuzz.TokenSetRatio(pattern, cl); s > score {
			score = s
		}
		if s := fuzz.PartialRatio(pattern, cl); s > score {
			score = s
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	if bestScore < threshold {
		return "", 0
	}
	return best, bestScore
}

func (f *Fuzzy) boundaryRe(pattern string) *regexp.Regexp {
	f.mu.RLock()
	re, ok := f.boundary[pattern]
	f.mu.RUnlock()
	if ok {
		return re
	}
	re = regexp.MustCompile(`\b` + regexp.QuoteMeta(pattern) + `\b`)
	f.mu.Lock()
	f.boundary[pattern] = re
	f.mu.Unlock()
	return re
}
