// Package seed carries an embedded roster snapshot for the big four US
// leagues. It backfills the team cache when a provider fetch for a league
// comes back empty, so first-run matching works before any network refresh
// succeeds.
package seed

import (
	_ "embed"

	"github.com/goccy/go-json"

	"github.com/snapetech/eventarr/internal/store"
)

//go:embed rosters.json
var raw []byte

// Teams decodes the embedded snapshot.
func Teams() ([]store.TeamCacheEntry, error) {
	var out []store.TeamCacheEntry
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Merge appends seed rows for leagues absent from fetched. Fetched rows
// always win; the seed never overrides live provider data.
func Merge(fetched, seeds []store.TeamCacheEntry) []store.TeamCacheEntry {
	have := make(map[string]bool, len(fetched))
	for _, t := range fetched {
		have[t.League] = true
	}
	out := fetched
	for _, t := range seeds {
		if !have[t.League] {
			out = append(out, t)
		}
	}
	return out
}
