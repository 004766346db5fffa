// Package progress is the in-process bus for long-running run status:
// named runs (cache refresh, EPG generation) publish staged percent frames,
// API subscribers stream them out over SSE.
package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Frame is one status update as the subscribers see it.
type Frame struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	Stage     string    `json:"stage,omitempty"`
	Message   string    `json:"message,omitempty"`
	Percent   int       `json:"percent"`
	Done      bool      `json:"done"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// subscriber buffers frames; a slow reader loses the oldest, never blocks
// the publisher.
type subscriber struct {
	ch chan Frame
}

const subscriberBuffer = 64

// Tracker is one named run in flight.
type Tracker struct {
	bus   *Bus
	runID string
	name  string

	mu      sync.Mutex
	percent int
	done    bool
}

// Bus owns the active trackers and their subscribers. One bus per process.
type Bus struct {
	log zerolog.Logger

	mu      sync.Mutex
	active  map[string]*Tracker // by run name; one active run per name
	last    map[string]Frame    // last terminal frame per name
	subs    map[string][]*subscriber
	history []Frame
}

func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		log:    log.With().Str("component", "progress").Logger(),
		active: make(map[string]*Tracker),
		last:   make(map[string]Frame),
		subs:   make(map[string][]*subscriber),
	}
}

// Start opens a run. A second Start under the same name while the first is
// live returns nil: callers gate concurrency elsewhere and this is the
// backstop.
func (b *Bus) Start(name string) *Tracker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.active[name]; ok && !t.finished() {
		return nil
	}
	t := &Tracker{bus: b, runID: uuid.NewString(), name: name}
	b.active[name] = t
	return t
}

// Status returns the latest frame for a run name: the active run's state or
// the last terminal frame.
func (b *Bus) Status(name string) (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.active[name]; ok && !t.finished() {
		t.mu.Lock()
		f := Frame{RunID: t.runID, Name: t.name, Percent: t.percent, Timestamp: time.Now().UTC()}
		t.mu.Unlock()
		return f, true
	}
	f, ok := b.last[name]
	return f, ok
}

// Subscribe returns a buffered frame channel for one run name and an
// unsubscribe func. The channel drops its oldest frame under pressure.
func (b *Bus) Subscribe(name string) (<-chan Frame, func()) {
	sub := &subscriber{ch: make(chan Frame, subscriberBuffer)}
	b.mu.Lock()
	b.subs[name] = append(b.subs[name], sub)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[name]
		for i, s := range subs {
			if s == sub {
				b.subs[name] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return sub.ch, cancel
}

func (b *Bus) publish(f Frame) {
	b.mu.Lock()
	if f.Done {
		b.last[f.Name] = f
	}
	subs := append([]*subscriber(nil), b.subs[f.Name]...)
	b.mu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- f:
		default:
			// Full buffer: drop the oldest frame and retry once.
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- f:
			default:
			}
		}
	}
}

func (t *Tracker) finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Update publishes a progress frame. A percent lower than the current one is
// raised to it: progress never runs backwards.
func (t *Tracker) Update(stage, message string, percent int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	if percent < t.percent {
		percent = t.percent
	}
	if percent > 100 {
		percent = 100
	}
	t.percent = percent
	t.mu.Unlock()

	t.bus.publish(Frame{
		RunID: t.runID, Name: t.name, Stage: stage, Message: message,
		Percent: percent, Timestamp: time.Now().UTC(),
	})
}

// Complete terminates the run at 100 percent.
func (t *Tracker) Complete(message string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.percent = 100
	t.mu.Unlock()

	t.bus.publish(Frame{
		RunID: t.runID, Name: t.name, Message: message,
		Percent: 100, Done: true, Timestamp: time.Now().UTC(),
	})
}

// Fail terminates the run with an error, keeping the last percent.
func (t *Tracker) Fail(err error) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	percent := t.percent
	t.mu.Unlock()

	msg := ""
	if err != nil {
		msg = err.Error()
	}
	t.bus.publish(Frame{
		RunID: t.runID, Name: t.name, Percent: percent,
		Done: true, Error: msg, Timestamp: time.Now().UTC(),
	})
}
