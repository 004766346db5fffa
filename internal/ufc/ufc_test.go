package ufc

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/classify"
	"github.com/snapetech/eventarr/internal/normalize"
	"github.com/snapetech/eventarr/internal/sports"
)

var (
	early   = time.Date(2026, 5, 9, 22, 0, 0, 0, time.UTC)
	prelims = time.Date(2026, 5, 9, 23, 30, 0, 0, time.UTC)
	main_   = time.Date(2026, 5, 10, 2, 0, 0, 0, time.UTC)
)

func cardEvent() sports.Event {
	return sports.Event{
		ID: "600100", Provider: "espn", League: "ufc", Sport: "mma",
		Name:  "UFC 315: Muhammad vs. Della Maddalena",
		Start: early,
		SegmentTimes: map[sports.Segment]time.Time{
			sports.SegmentEarlyPrelims: early,
			sports.SegmentPrelims:      prelims,
			sports.SegmentMainCard:     main_,
		},
		MainCardStart: main_,
	}
}

func expander() (*Expander, *classify.Classifier, *normalize.Normalizer) {
	cls := classify.New(zerolog.Nop())
	return NewExpander(cls, zerolog.Nop()), cls, normalize.New()
}

func item(cls *classify.Classifier, n *normalize.Normalizer, name string, ev sports.Event, id int64) Item {
	return Item{StreamID: id, Name: name, Stream: cls.Classify(n.Normalize(name)), Event: ev}
}

func TestExpandThreeSegments(t *testing.T) {
	e, cls, n := expander()
	ev := cardEvent()
	items := []Item{
		item(cls, n, "UFC 315 Early Prelims", ev, 1),
		item(cls, n, "UFC 315 Prelims", ev, 2),
		item(cls, n, "UFC 315 Main Card", ev, 3),
	}
	mma := 6 * time.Hour
	groups := e.Expand(items, time.UTC, mma)
	if len(groups) != 3 {
		t.Fatalf("got %d groups, want 3", len(groups))
	}
	want := []struct {
		seg        sports.Segment
		start, end time.Time
	}{
		{sports.SegmentEarlyPrelims, early, prelims},
		{sports.SegmentPrelims, prelims, main_},
		{sports.SegmentMainCard, main_, main_.Add(mma / 2)},
	}
	for i, w := range want {
		g := groups[i]
		if g.Segment != w.seg {
			t.Fatalf("group %d segment = %s, want %s", i, g.Segment, w.seg)
		}
		if !g.SegmentStart.Equal(w.start) || !g.SegmentEnd.Equal(w.end) {
			t.Fatalf("%s window = %v..%v, want %v..%v", w.seg, g.SegmentStart, g.SegmentEnd, w.start, w.end)
		}
		if len(g.Items) != 1 {
			t.Fatalf("%s has %d streams, want 1", w.seg, len(g.Items))
		}
	}
}

func TestExpandDefaultsAndCombined(t *testing.T) {
	e, cls, n := expander()
	ev := cardEvent()
	items := []Item{
		item(cls, n, "UFC 315", ev, 1),           // no segment token: main card
		item(cls, n, "UFC 315 Full Card", ev, 2), // combined: main card
	}
	groups := e.Expand(items, time.UTC, 6*time.Hour)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1 consolidated main card", len(groups))
	}
	if groups[0].Segment != sports.SegmentMainCard {
		t.Fatalf("segment = %s, want main_card", groups[0].Segment)
	}
	if len(groups[0].Items) != 2 {
		t.Fatalf("main card has %d streams, want 2", len(groups[0].Items))
	}
}

func TestExpandDropsExcludedContent(t *testing.T) {
	e, cls, n := expander()
	ev := cardEvent()
	groups := e.Expand([]Item{
		item(cls, n, "UFC 315 Weigh-Ins", ev, 1),
		item(cls, n, "UFC 315 Press Conference", ev, 2),
		item(cls, n, "UFC 315 Main Card", ev, 3),
	}, time.UTC, 6*time.Hour)
	if len(groups) != 1 || groups[0].Segment != sports.SegmentMainCard {
		t.Fatalf("groups = %+v, want only the main card", groups)
	}
}

func TestPrelimsClockDisambiguation(t *testing.T) {
	e, cls, n := expander()
	ev := cardEvent()
	// 22:00 UTC is the early prelims start; a "Prelims 10:00 PM" stream in a
	// UTC household is really the early prelims broadcast.
	it := item(cls, n, "UFC 315 Prelims 10:00 PM", ev, 1)
	if !it.Stream.HasClock {
		t.Fatal("expected a clock token to be extracted")
	}
	groups := e.Expand([]Item{it}, time.UTC, 6*time.Hour)
	if len(groups) != 1 || groups[0].Segment != sports.SegmentEarlyPrelims {
		t.Fatalf("segment = %+v, want early_prelims", groups)
	}

	// Without a clock the detected segment stands.
	groups = e.Expand([]Item{item(cls, n, "UFC 315 Prelims", ev, 2)}, time.UTC, 6*time.Hour)
	if len(groups) != 1 || groups[0].Segment != sports.SegmentPrelims {
		t.Fatalf("segment = %+v, want prelims", groups)
	}
}

func TestCanonicalizeMissingSegment(t *testing.T) {
	e, cls, n := expander()
	ev := cardEvent()
	// Event reports no early prelims; an early prelims stream lands on the
	// next later segment.
	delete(ev.SegmentTimes, sports.SegmentEarlyPrelims)
	groups := e.Expand([]Item{item(cls, n, "UFC 315 Early Prelims", ev, 1)}, time.UTC, 6*time.Hour)
	if len(groups) != 1 || groups[0].Segment != sports.SegmentPrelims {
		t.Fatalf("segment = %+v, want prelims", groups)
	}
}

func TestEstimatedWindowsWithoutSegmentTimes(t *testing.T) {
	e, cls, n := expander()
	ev := cardEvent()
	ev.SegmentTimes = nil
	ev.MainCardStart = main_
	groups := e.Expand([]Item{item(cls, n, "UFC 315 Prelims", ev, 1)}, time.UTC, 6*time.Hour)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	g := groups[0]
	if !g.SegmentStart.Equal(main_.Add(-90 * time.Minute)) {
		t.Fatalf("estimated prelims start = %v", g.SegmentStart)
	}
	if !g.SegmentEnd.Equal(main_) {
		t.Fatalf("estimated prelims end = %v, want main card start", g.SegmentEnd)
	}
}

func TestNonCombatPassThrough(t *testing.T) {
	e, cls, n := expander()
	game := sports.Event{ID: "401100", Provider: "espn", League: "nfl", Sport: "football", Name: "Lions at Packers"}
	groups := e.Expand([]Item{item(cls, n, "Detroit Lions vs Green Bay Packers", game, 1)}, time.UTC, 6*time.Hour)
	if len(groups) != 1 {
		t.Fatalf("got %d groups, want 1", len(groups))
	}
	if groups[0].Segment != "" || !groups[0].SegmentStart.IsZero() {
		t.Fatalf("non-combat group altered: %+v", groups[0])
	}
}
