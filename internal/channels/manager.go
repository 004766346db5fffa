// Package channels owns the managed-channel records: upserts keyed by the
// consolidate identity (group, event, provider, keyword), exception-keyword
// routing, child-group stream attachment, numbering, and soft deletes.
package channels

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snapetech/eventarr/internal/metrics"
	"github.com/snapetech/eventarr/internal/sports"
	"github.com/snapetech/eventarr/internal/store"
)

// TVGPrefix marks every tvg id this engine writes; the reconciler uses it to
// recognize downstream channels it owns.
const TVGPrefix = "eventarr."

type Manager struct {
	st  *store.Store
	met *metrics.Metrics
	log zerolog.Logger
}

func NewManager(st *store.Store, met *metrics.Metrics, log zerolog.Logger) *Manager {
	return &Manager{st: st, met: met, log: log.With().Str("component", "channels").Logger()}
}

// StreamRef is the downstream stream being attached.
type StreamRef struct {
	ID           int64
	Name         string
	M3UAccountID int64
	Priority     int
}

// EventRef is the matched event plus its presentation context.
type EventRef struct {
	Event        sports.Event
	EventDate    string // civil date in the user tz, YYYY-MM-DD
	Segment      sports.Segment
	SegmentStart time.Time
	SegmentEnd   time.Time
}

// Key is the channel identity an event resolves to. Card segments get their own
// channels, so a non-empty segment folds into the key.
func (e EventRef) Key() string {
	if e.Segment != "" && e.Segment != sports.SegmentMainCard {
		return e.Event.ID + "#" + string(e.Segment)
	}
	return e.Event.ID
}

// TVGID builds the engine-owned tvg id for one consolidate identity.
func TVGID(provider, eventKey string, keyword *string) string {
	id := TVGPrefix + sanitizeTVG(provider) + "." + sanitizeTVG(eventKey)
	if keyword != nil {
		id += "." + sanitizeTVG(*keyword)
	}
	return id
}

func sanitizeTVG(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

var segmentLabels = map[sports.Segment]string{
	sports.SegmentEarlyPrelims: "Early Prelims",
	sports.SegmentPrelims:      "Prelims",
	sports.SegmentMainCard:     "Main Card",
}

// ChannelName renders the display name: matchup or event name, with segment
// and keyword labels appended.
func ChannelName(e EventRef, keyword *string) string {
	name := e.Event.Name
	if e.Event.HasTeams() {
		name = e.Event.Away.Name + " at " + e.Event.Home.Name
	}
	if e.Segment != "" && e.Segment != sports.SegmentMainCard {
		if label, ok := segmentLabels[e.Segment]; ok {
			name += " - " + label
		}
	}
	if keyword != nil && *keyword != "" {
		name += " (" + *keyword + ")"
	}
	return name
}

// UpsertResult reports what one upsert did.
type UpsertResult struct {
	Channel  store.Channel
	Created  bool
	Attached bool
	Skipped  string // non-empty when the stream went nowhere
}

// Upsert routes one matched stream into a channel per the effective
// duplicate behavior. keyword nil means the main channel; a keyword's own
// behavior overrides the group's duplicate mode.
func (m *Manager) Upsert(group store.Group, ev EventRef, stream StreamRef, keyword *store.ExceptionKeyword, alloc *Allocator) (UpsertResult, error) {
	behavior := group.DuplicateMode
	if behavior == "" {
		behavior = "consolidate"
	}
	var label *string
	if keyword != nil {
		behavior = keyword.Behavior
		label = &keyword.Label
	}

	switch behavior {
	case "separate":
		return m.upsertSeparate(group, ev, stream, label, alloc)
	case "ignore":
		return m.upsertIgnore(group, ev, stream, label, alloc)
	default:
		return m.upsertConsolidate(group, ev, stream, label, alloc)
	}
}

// upsertConsolidate: one channel per identity, every stream attaches to it.
func (m *Manager) upsertConsolidate(group store.Group, ev EventRef, stream StreamRef, label *string, alloc *Allocator) (UpsertResult, error) {
	key := ev.Key()
	ch, err := m.st.FindActiveChannel(group.ID, ev.Event.Provider, key, label)
	switch {
	case err == nil:
		if err := m.refreshMetadata(&ch, ev); err != nil {
			return UpsertResult{}, err
		}
	case errors.Is(err, store.ErrNotFound):
		ch, err = m.create(group, ev, stream, label, nil, alloc)
		if err != nil {
			return UpsertResult{}, err
		}
		return m.attach(ch, group, stream, label, true)
	default:
		return UpsertResult{}, err
	}
	return m.attach(ch, group, stream, label, false)
}

// upsertSeparate: one channel per primary stream.
func (m *Manager) upsertSeparate(group store.Group, ev EventRef, stream StreamRef, label *string, alloc *Allocator) (UpsertResult, error) {
	ch, err := m.st.FindActiveChannelByPrimaryStream(group.ID, stream.ID)
	switch {
	case err == nil:
		if err := m.refreshMetadata(&ch, ev); err != nil {
			return UpsertResult{}, err
		}
		return m.attach(ch, group, stream, label, false)
	case errors.Is(err, store.ErrNotFound):
		ch, err = m.create(group, ev, stream, label, &stream.ID, alloc)
		if err != nil {
			return UpsertResult{}, err
		}
		return m.attach(ch, group, stream, label, true)
	default:
		return UpsertResult{}, err
	}
}

// upsertIgnore: the first stream for an event wins, later ones are dropped.
func (m *Manager) upsertIgnore(group store.Group, ev EventRef, stream StreamRef, label *string, alloc *Allocator) (UpsertResult, error) {
	existing, err := m.st.FindActiveChannelsForEvent(group.ID, ev.Event.Provider, ev.Key())
	if err != nil {
		return UpsertResult{}, err
	}
	if len(existing) > 0 {
		return UpsertResult{Channel: existing[0], Skipped: "duplicate ignored"}, nil
	}
	ch, err := m.create(group, ev, stream, label, nil, alloc)
	if err != nil {
		return UpsertResult{}, err
	}
	return m.attach(ch, group, stream, label, true)
}

func (m *Manager) create(group store.Group, ev EventRef, stream StreamRef, label *string, primary *int64, alloc *Allocator) (store.Channel, error) {
	number, err := alloc.Next(group.ID)
	if err != nil {
		return store.Channel{}, err
	}
	e := ev.Event
	ch := store.Channel{
		GroupID:          group.ID,
		EventID:          ev.Key(),
		EventProvider:    e.Provider,
		TVGID:            TVGID(e.Provider, ev.Key(), label),
		Name:             ChannelName(ev, label),
		Number:           number,
		PrimaryStreamID:  primary,
		ExceptionKeyword: label,
		EventName:        e.Name,
		EventStart:       e.Start,
		EventDate:        ev.EventDate,
		League:           e.League,
		Sport:            e.Sport,
		Venue:            e.Venue,
		Broadcast:        e.Broadcast,
		Segment:          string(ev.Segment),
		SegmentStart:     ev.SegmentStart,
		SegmentEnd:       ev.SegmentEnd,
	}
	if e.Home != nil {
		ch.HomeTeam = e.Home.Name
		if ch.LogoURL == "" {
			ch.LogoURL = e.Home.LogoURL
		}
	}
	if e.Away != nil {
		ch.AwayTeam = e.Away.Name
	}
	if err := m.st.InsertChannel(&ch); err != nil {
		return store.Channel{}, err
	}
	m.met.ChannelsCreated.Inc()
	m.log.Info().Int64("channel", ch.ID).Int("number", ch.Number).Str("name", ch.Name).Msg("channel created")
	return ch, nil
}

// refreshMetadata folds provider updates (start time moves, venue, status
// detail) into an existing channel.
func (m *Manager) refreshMetadata(ch *store.Channel, ev EventRef) error {
	e := ev.Event
	changed := !ch.EventStart.Equal(e.Start) || ch.Venue != e.Venue ||
		ch.Broadcast != e.Broadcast || ch.EventDate != ev.EventDate ||
		!ch.SegmentStart.Equal(ev.SegmentStart) || !ch.SegmentEnd.Equal(ev.SegmentEnd)
	if !changed {
		return nil
	}
	ch.EventStart = e.Start
	ch.EventDate = ev.EventDate
	ch.Venue = e.Venue
	ch.Broadcast = e.Broadcast
	ch.SegmentStart = ev.SegmentStart
	ch.SegmentEnd = ev.SegmentEnd
	if err := m.st.UpdateChannel(ch); err != nil {
		return err
	}
	return m.st.AppendHistory(ch.ID, "updated", "event metadata refreshed")
}

func (m *Manager) attach(ch store.Channel, group store.Group, stream StreamRef, label *string, created bool) (UpsertResult, error) {
	groupType := "main"
	if group.IsChild() {
		groupType = "child"
	}
	cs := store.ChannelStream{
		ChannelID:          ch.ID,
		DownstreamStreamID: stream.ID,
		Name:               stream.Name,
		Priority:           stream.Priority,
		SourceGroupID:      group.ID,
		SourceGroupType:    groupType,
		M3UAccountID:       stream.M3UAccountID,
		ExceptionKeyword:   label,
	}
	if err := m.st.AddChannelStream(&cs); err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{Channel: ch, Created: created, Attached: true}, nil
}

// AttachToParent adds a child group's stream to the parent's channel for the
// event. A keyword-labeled stream falls back to the parent's main channel
// when no labeled channel exists; with no parent channel at all the stream
// is skipped. Children never create channels.
func (m *Manager) AttachToParent(parent store.Group, child store.Group, ev EventRef, stream StreamRef, keyword *store.ExceptionKeyword) (UpsertResult, error) {
	var label *string
	if keyword != nil {
		label = &keyword.Label
	}
	key := ev.Key()
	ch, err := m.st.FindActiveChannel(parent.ID, ev.Event.Provider, key, label)
	if errors.Is(err, store.ErrNotFound) && label != nil {
		ch, err = m.st.FindActiveChannel(parent.ID, ev.Event.Provider, key, nil)
	}
	if errors.Is(err, store.ErrNotFound) {
		m.log.Debug().Str("event", key).Int64("child", child.ID).Msg("no parent channel for child stream, skipping")
		return UpsertResult{Skipped: "parent channel missing"}, nil
	}
	if err != nil {
		return UpsertResult{}, err
	}
	return m.attach(ch, child, stream, label, false)
}

// ScheduleDelete stamps a future delete time on a channel.
func (m *Manager) ScheduleDelete(ch *store.Channel, at time.Time) error {
	if ch.ScheduledDeleteAt != nil && ch.ScheduledDeleteAt.Equal(at) {
		return nil
	}
	ch.ScheduledDeleteAt = &at
	return m.st.UpdateChannel(ch)
}

// Delete soft-deletes a channel and records the reason.
func (m *Manager) Delete(ch store.Channel, reason string) error {
	if err := m.st.SoftDeleteChannel(ch.ID, reason); err != nil {
		return err
	}
	m.met.ChannelsDeleted.WithLabelValues(reason).Inc()
	m.log.Info().Int64("channel", ch.ID).Str("name", ch.Name).Str("reason", reason).Msg("channel deleted")
	return nil
}

// DeleteDue soft-deletes every channel whose scheduled delete time has
// passed and returns them so the pipeline can drop the downstream twins.
func (m *Manager) DeleteDue(now time.Time) ([]store.Channel, error) {
	due, err := m.st.ListChannelsDue(now)
	if err != nil {
		return nil, err
	}
	var deleted []store.Channel
	for _, ch := range due {
		if err := m.Delete(ch, "scheduled"); err != nil {
			return deleted, err
		}
		deleted = append(deleted, ch)
	}
	return deleted, nil
}

// Renumber moves a channel to a new number, refusing collisions with other
// active channels.
func (m *Manager) Renumber(ch *store.Channel, number int) error {
	used, err := m.st.UsedChannelNumbers(ch.ID)
	if err != nil {
		return err
	}
	if used[number] {
		return fmt.Errorf("channels: number %d already in use", number)
	}
	old := ch.Number
	ch.Number = number
	if err := m.st.UpdateChannel(ch); err != nil {
		return err
	}
	return m.st.AppendHistory(ch.ID, "renumbered", fmt.Sprintf("%d to %d", old, number))
}
