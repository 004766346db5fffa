package ordering

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/store"
)

func TestFirstMatchingRuleWins(t *testing.T) {
	s := NewService(zerolog.Nop())
	s.Reload([]store.OrderingRule{
		{ID: 1, Type: "regex", Value: `\b4k\b`, Priority: 5},
		{ID: 2, Type: "m3u", Value: "Premium Provider", Priority: 1},
		{ID: 3, Type: "group", Value: "US Sports", Priority: 10},
	})

	cases := []struct {
		st   Stream
		want int
	}{
		// m3u equality outranks the regex despite list order: rules sort by priority.
		{Stream{Name: "Lions vs Packers 4K", M3UAccount: "premium provider"}, 1},
		{Stream{Name: "Lions vs Packers 4K", M3UAccount: "other"}, 5},
		{Stream{Name: "Lions vs Packers", SourceGroup: "us sports"}, 10},
		{Stream{Name: "Lions vs Packers"}, DefaultPriority},
	}
	for _, c := range cases {
		if got := s.Priority(c.st); got != c.want {
			t.Fatalf("Priority(%+v) = %d, want %d", c.st, got, c.want)
		}
	}
}

func TestInvalidRegexNeverMatches(t *testing.T) {
	s := NewService(zerolog.Nop())
	s.Reload([]store.OrderingRule{{ID: 1, Type: "regex", Value: `([`, Priority: 1}})
	if got := s.Priority(Stream{Name: "anything"}); got != DefaultPriority {
		t.Fatalf("invalid rule matched: priority %d", got)
	}
}

func TestSortStableWithinPriority(t *testing.T) {
	s := NewService(zerolog.Nop())
	s.Reload([]store.OrderingRule{
		{ID: 1, Type: "regex", Value: `fhd`, Priority: 1},
	})
	streams := []Stream{
		{Name: "feed a"},
		{Name: "feed b FHD"},
		{Name: "feed c"},
		{Name: "feed d FHD"},
	}
	s.Sort(streams)
	want := []string{"feed b FHD", "feed d FHD", "feed a", "feed c"}
	for i, w := range want {
		if streams[i].Name != w {
			t.Fatalf("order[%d] = %q, want %q", i, streams[i].Name, w)
		}
	}
}
