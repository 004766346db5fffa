package reconcile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/channels"
	"github.com/snapetech/eventarr/internal/dispatcharr"
	"github.com/snapetech/eventarr/internal/metrics"
	"github.com/snapetech/eventarr/internal/store"
)

type fakeDown struct {
	channels []dispatcharr.Channel
	deleted  []int64
}

func (f *fakeDown) Enabled() bool { return true }
func (f *fakeDown) ListChannels(context.Context) ([]dispatcharr.Channel, error) {
	return f.channels, nil
}
func (f *fakeDown) DeleteChannel(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func newFixture(t *testing.T, down Downstream) (*Reconciler, *store.Store, store.Group) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	g := store.Group{Name: "NFL", ChannelAssignmentMode: "manual", DuplicateMode: "consolidate", Enabled: true}
	if err := st.SaveGroup(&g); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}
	mgr := channels.NewManager(st, metrics.New(), zerolog.Nop())
	return New(st, mgr, down, zerolog.Nop()), st, g
}

func insert(t *testing.T, st *store.Store, g store.Group, eventID string, number int, downID *int64) store.Channel {
	t.Helper()
	ch := store.Channel{
		GroupID: g.ID, EventID: eventID, EventProvider: "espn",
		TVGID: channels.TVGPrefix + "espn." + eventID, Name: "ch " + eventID, Number: number,
		DownstreamChannelID: downID,
		EventStart:          time.Now().Add(time.Hour), EventDate: "2025-09-14",
		League: "nfl", Sport: "football",
	}
	if err := st.InsertChannel(&ch); err != nil {
		t.Fatalf("InsertChannel: %v", err)
	}
	return ch
}

func TestDuplicateKeepsOldest(t *testing.T) {
	r, st, g := newFixture(t, nil)
	oldest := insert(t, st, g, "401100", 101, nil)
	dup := insert(t, st, g, "401100", 102, nil)

	rep, err := r.Run(context.Background(), Options{FixDuplicates: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Summary[KindDuplicate] != 1 {
		t.Fatalf("summary = %+v, want one duplicate", rep.Summary)
	}
	kept, _ := st.GetChannel(oldest.ID)
	gone, _ := st.GetChannel(dup.ID)
	if kept.Deleted() || !gone.Deleted() {
		t.Fatalf("kept.deleted=%v gone.deleted=%v", kept.Deleted(), gone.Deleted())
	}
	if gone.DeleteReason != "duplicate" {
		t.Fatalf("delete reason = %q", gone.DeleteReason)
	}
}

func TestDetectOnlyLeavesRowsAlone(t *testing.T) {
	r, st, g := newFixture(t, nil)
	insert(t, st, g, "401100", 101, nil)
	dup := insert(t, st, g, "401100", 102, nil)

	rep, err := r.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Summary[KindDuplicate] != 1 || rep.Summary["fixed"] != 0 {
		t.Fatalf("summary = %+v", rep.Summary)
	}
	still, _ := st.GetChannel(dup.ID)
	if still.Deleted() {
		t.Fatal("detect-only run must not delete")
	}
}

func TestOrphanEngineQueuedForRecreate(t *testing.T) {
	downID := int64(77)
	down := &fakeDown{} // downstream knows nothing
	r, st, g := newFixture(t, down)
	ch := insert(t, st, g, "401100", 101, &downID)

	rep, err := r.Run(context.Background(), Options{FixOrphanEngine: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Summary[KindOrphanEngine] != 1 {
		t.Fatalf("summary = %+v", rep.Summary)
	}
	got, _ := st.GetChannel(ch.ID)
	if got.DownstreamChannelID != nil || got.SyncStatus != "pending" {
		t.Fatalf("channel after fix = %+v", got)
	}
}

func TestOrphanDownstreamDeletedOnlyWhenEnabled(t *testing.T) {
	down := &fakeDown{channels: []dispatcharr.Channel{
		{ID: 9, Name: "stray", TVGID: channels.TVGPrefix + "espn.999"},
		{ID: 10, Name: "user channel", TVGID: "some.other.id"},
	}}
	r, _, _ := newFixture(t, down)

	rep, err := r.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Summary[KindOrphanDownstream] != 1 {
		t.Fatalf("summary = %+v, want the stray flagged and the user channel ignored", rep.Summary)
	}
	if len(down.deleted) != 0 {
		t.Fatal("fix disabled, nothing should be deleted")
	}

	rep, err = r.Run(context.Background(), Options{FixOrphanDownstream: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(down.deleted) != 1 || down.deleted[0] != 9 {
		t.Fatalf("deleted = %v, want [9]", down.deleted)
	}
	_ = rep
}

func TestOutOfRangeRenumbered(t *testing.T) {
	r, st, g := newFixture(t, nil)
	ch := insert(t, st, g, "401100", 99999, nil)

	rep, err := r.Run(context.Background(), Options{FixOutOfRange: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Summary[KindOutOfRange] != 1 || rep.Summary["fixed"] != 1 {
		t.Fatalf("summary = %+v", rep.Summary)
	}
	got, _ := st.GetChannel(ch.ID)
	if got.Number == 99999 {
		t.Fatal("channel not renumbered")
	}
	if got.Number < 1 || got.Number > 9999 {
		t.Fatalf("renumbered to %d, outside default range", got.Number)
	}
}
