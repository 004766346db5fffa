// Package providers defines the capability the matching engine sees of a
// sports-data source, the process-scoped registry of configured sources, and
// a short-TTL event cache wrapper. Adapters live in subpackages; the core
// never touches provider wire formats.
package providers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/snapetech/eventarr/internal/sports"
)

// SportsProvider is the narrow contract adapters implement. Adapters return
// (zero value, error) on failure; they never panic into the core and never
// leak wire-level error types.
type SportsProvider interface {
	Name() string
	SupportsLeague(league string) bool
	Events(ctx context.Context, league string, date time.Time) ([]sports.Event, error)
	Event(ctx context.Context, id, league string) (*sports.Event, error)
	Team(ctx context.Context, id, league string) (*sports.Team, error)
	LeagueTeams(ctx context.Context, league string) ([]sports.Team, error)
	SupportedLeagues(ctx context.Context) ([]string, error)
	// Premium reports whether the configured credentials unlock full
	// coverage; league fallback routing checks it.
	Premium() bool
}

// Registry holds the registered providers. Built once at startup; reads
// take the RLock so settings changes can re-register safely.
type Registry struct {
	mu    sync.RWMutex
	byNam map[string]SportsProvider
}

func NewRegistry() *Registry {
	return &Registry{byNam: make(map[string]SportsProvider)}
}

func (r *Registry) Register(p SportsProvider) {
	r.mu.Lock()
	r.byNam[p.Name()] = p
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (SportsProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byNam[name]
	return p, ok
}

// All returns the providers in stable name order.
func (r *Registry) All() []SportsProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byNam))
	for n := range r.byNam {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]SportsProvider, 0, len(names))
	for _, n := range names {
		out = append(out, r.byNam[n])
	}
	return out
}

// Has reports whether a provider is registered under name.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}
