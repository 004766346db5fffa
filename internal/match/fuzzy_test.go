package match

import (
	"testing"

	"github.com/snapetech/eventarr/internal/sports"
)

func TestTeamPatterns(t *testing.T) {
	team := sports.Team{
		Name:         "Green Bay Packers",
		ShortName:    "Packers",
		Abbreviation: "GB",
	}
	got := TeamPatterns(team)
	want := []string{"green bay packers", "green bay", "packers", "gb"}
	if len(got) != len(want) {
		t.Fatalf("patterns = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("patterns[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStripMascot(t *testing.T) {
	cases := map[string]struct {
		in, want string
	}{
		"single word":       {"Detroit Lions", "Detroit"},
		"multi word suffix": {"Toronto Maple Leafs", "Toronto"},
		"college":           {"Notre Dame Fighting Irish", "Notre Dame"},
		"soccer suffix":     {"Leeds United", "Leeds"},
		"no mascot":         {"Inter Miami", "Miami"},
		"all mascot words":  {"Wild", "Wild"},
	}
	for name, tc := range cases {
		if got := StripMascot(tc.in); got != tc.want {
			t.Fatalf("%s: StripMascot(%q) = %q, want %q", name, tc.in, got, tc.want)
		}
	}
}

func TestExpandAbbreviations(t *testing.T) {
	f := NewFuzzy()
	cases := map[string]struct {
		in, want string
	}{
		"versus":       {"lions vs packers", "lions versus packers"},
		"single v":     {"lions v packers", "lions versus packers"},
		"fight night":  {"ufc fn 250", "ufc fight night 250"},
		"ppv":          {"ufc 300 ppv", "ufc 300 pay per view"},
		"inside words": {"vstream fnatic", "vstream fnatic"},
	}
	for name, tc := range cases {
		if got := f.ExpandAbbreviations(tc.in); got != tc.want {
			t.Fatalf("%s: got %q, want %q", name, got, tc.want)
		}
	}
}

func TestSideScore(t *testing.T) {
	f := NewFuzzy()
	packers := TeamPatterns(sports.Team{Name: "Green Bay Packers", ShortName: "Packers", Abbreviation: "GB"})

	if s := f.SideScore("green bay packers hd feed", packers); s != 100 {
		t.Fatalf("substring hit = %d, want 100", s)
	}
	// Short patterns only hit on word boundaries: "gb" inside "rugby" is not
	// a match.
	if s := f.SideScore("rugby sevens", packers); s == 100 {
		t.Fatal("boundary pattern matched inside a longer word")
	}
	if s := f.SideScore("gb at chicago", packers); s != 100 {
		t.Fatalf("boundary hit = %d, want 100", s)
	}
	if s := f.SideScore("", packers); s != 0 {
		t.Fatalf("empty text = %d, want 0", s)
	}
}

func TestBestMatch(t *testing.T) {
	f := NewFuzzy()
	candidates := []string{"UFC Fight Night: Silva vs Jones", "UFC 300: Pereira vs Hill", "Bellator 290"}

	got, score := f.BestMatch("ufc 300 pereira hill", candidates, 85)
	if got != "UFC 300: Pereira vs Hill" || score < 85 {
		t.Fatalf("best = %q (%d)", got, score)
	}
	if got, _ := f.BestMatch("premier league darts", candidates, 85); got != "" {
		t.Fatalf("unrelated pattern matched %q", got)
	}
}
