package normalize

import (
	"testing"
	"time"
)

// fixedNow pins year inference to mid-2025 so month/day dates resolve the
// same way on every run. From July 15, Dec 31 is closer forward (169 days)
// than back (196) and Jan 2 closer forward (171) than back (194).
func fixedNow() time.Time {
	return time.Date(2025, time.July, 15, 12, 0, 0, 0, time.UTC)
}

func testNormalizer() *Normalizer {
	return NewAt(fixedNow)
}

func TestNormalizeClean(t *testing.T) {
	n := testNormalizer()
	tests := map[string]string{
		"Lakers vs Celtics":              "Lakers vs Celtics",
		"  Lakers\nvs\r\nCeltics  ":      "Lakers vs Celtics",
		"ESPN+ : Lakers vs Celtics":      "Lakers vs Celtics",
		"DAZN | Canelo vs Crawford":      "Canelo vs Crawford",
		"Bayern MÃ¼nchen vs Dortmund":    "Bayern Munich vs Dortmund",
		"Bayern München vs 1. FC Köln":   "Bayern Munich vs 1. FC Cologne",
		"Atlético Madrid @ Sevilla":      "Atletico Madrid @ Sevilla",
		"ESPNEWS Special":                "ESPNEWS Special",
		"Yankees @ Red Sox 7:30PM":       "Yankees @ Red Sox TIME_MASK",
		"NHL 2025-10-12 Rangers vs Habs": "NHL DATE_MASK Rangers vs Habs",
		"UFC 315: Pereira vs Hill":       "UFC 315: Pereira vs Hill",
	}
	for in, want := range tests {
		if got := n.Normalize(in).Clean; got != want {
			t.Fatalf("Normalize(%q).Clean=%q want %q", in, got, want)
		}
	}
}

func TestNormalizeEmpty(t *testing.T) {
	res := testNormalizer().Normalize("   ")
	if res.Clean != "" || res.HasDate || res.HasClock || res.Prefix != "" {
		t.Fatalf("blank input should yield zero result, got %+v", res)
	}
}

func TestProviderPrefixPreserved(t *testing.T) {
	n := testNormalizer()
	res := n.Normalize("ESPN+ UFC Fight Night: Ortega vs Sterling")
	if res.Prefix != "ESPN+" {
		t.Fatalf("prefix=%q want ESPN+", res.Prefix)
	}
	if res.Clean != "UFC Fight Night: Ortega vs Sterling" {
		t.Fatalf("clean=%q", res.Clean)
	}
	// Longest prefix wins over its own substring.
	res = n.Normalize("UFC FIGHT PASS: Prelims")
	if res.Prefix != "UFC FIGHT PASS" {
		t.Fatalf("prefix=%q want UFC FIGHT PASS", res.Prefix)
	}
	// A bare brand name is a channel, not a prefixed event.
	res = n.Normalize("ESPN")
	if res.Prefix != "" || res.Clean != "ESPN" {
		t.Fatalf("bare brand: prefix=%q clean=%q", res.Prefix, res.Clean)
	}
}

func TestDateExtraction(t *testing.T) {
	n := testNormalizer()
	tests := map[string]time.Time{
		"Game 2025-10-12":        time.Date(2025, 10, 12, 0, 0, 0, 0, time.UTC),
		"Game 10/12":             time.Date(2025, 10, 12, 0, 0, 0, 0, time.UTC),
		"Game 10/12/24":          time.Date(2024, 10, 12, 0, 0, 0, 0, time.UTC),
		"Game 10/12/2026":        time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC),
		"Game 31 Dec":            time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		"Game Dec 31":            time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		"Game 3rd May":           time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC),
		"Game Jan 2":             time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), // 171 days forward beats 194 back
		"Game Sept 1, 2025":      time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		"Kickoff 12/31 at venue": time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range tests {
		res := n.Normalize(in)
		if !res.HasDate {
			t.Fatalf("Normalize(%q): no date extracted", in)
		}
		if !res.Date.Equal(want) {
			t.Fatalf("Normalize(%q).Date=%s want %s", in, res.Date, want)
		}
	}
}

func TestDateNotExtracted(t *testing.T) {
	n := testNormalizer()
	for _, in := range []string{
		"UFC 315",
		"Game 02/31", // no such day
		"Round 13/45",
	} {
		if res := n.Normalize(in); res.HasDate {
			t.Fatalf("Normalize(%q): unexpected date %s", in, res.Date)
		}
	}
}

func TestMonthThenClockIsNotADate(t *testing.T) {
	res := testNormalizer().Normalize("Event Jan 11:45pm")
	if res.HasDate {
		t.Fatalf("Jan 11:45pm parsed as date %s", res.Date)
	}
	if !res.HasClock || res.Clock != 23*60+45 {
		t.Fatalf("clock=%d hasClock=%v want 23:45", res.Clock, res.HasClock)
	}
}

func TestClockExtraction(t *testing.T) {
	n := testNormalizer()
	tests := map[string]int{
		"Game 7:30pm":   19*60 + 30,
		"Game 7PM":      19 * 60,
		"Game 12am":     0,
		"Game 12:15 PM": 12*60 + 15,
		"Game 19:30":    19*60 + 30,
		"Game 00:05":    5,
	}
	for in, want := range tests {
		res := n.Normalize(in)
		if !res.HasClock || res.Clock != want {
			t.Fatalf("Normalize(%q).Clock=%d (has=%v) want %d", in, res.Clock, res.HasClock, want)
		}
	}
	if res := n.Normalize("UFC 300"); res.HasClock {
		t.Fatalf("UFC 300: unexpected clock %d", res.Clock)
	}
}

func TestMaskingBothTokens(t *testing.T) {
	res := testNormalizer().Normalize("Sharks @ Kings 10/12 7pm")
	if res.Clean != "Sharks @ Kings DATE_MASK TIME_MASK" {
		t.Fatalf("clean=%q", res.Clean)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := testNormalizer()
	inputs := []string{
		"ESPN+ Bayern MÃ¼nchen vs Köln 10/12 7:30pm",
		"Yankees @ Red Sox",
		"UFC 315: Early Prelims",
	}
	for _, in := range inputs {
		once := n.Normalize(in).Clean
		twice := n.Normalize(once).Clean
		if once != twice {
			t.Fatalf("not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestFingerprintStable(t *testing.T) {
	n := testNormalizer()
	a := n.Fingerprint("ESPN+ : Yankees @ Red Sox 7:30PM")
	b := n.Fingerprint("espn+ yankees @ RED SOX 7:30pm")
	if a != b {
		t.Fatalf("fingerprints differ: %q vs %q", a, b)
	}
	if a == "" {
		t.Fatal("empty fingerprint")
	}
}

func TestForMatching(t *testing.T) {
	tests := map[string]string{
		"St. Louis Blues":  "st louis blues",
		"A.F.C. Richmond!": "a f c richmond",
		"  Real   Madrid ": "real madrid",
	}
	for in, want := range tests {
		if got := ForMatching(in); got != want {
			t.Fatalf("ForMatching(%q)=%q want %q", in, got, want)
		}
	}
}

func TestFoldAccents(t *testing.T) {
	tests := map[string]string{
		"München":     "Munchen",
		"Atlético":    "Atletico",
		"Beşiktaş":    "Besiktas",
		"Malmö":       "Malmo",
		"Brøndby":     "Brondby",
		"São Paulo":   "Sao Paulo",
		"Plain ASCII": "Plain ASCII",
	}
	for in, want := range tests {
		if got := FoldAccents(in); got != want {
			t.Fatalf("FoldAccents(%q)=%q want %q", in, got, want)
		}
	}
}
