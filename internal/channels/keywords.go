package channels

import (
	"strings"

	"github.com/snapetech/eventarr/internal/store"
)

// MatchKeyword returns the first enabled exception keyword whose match terms
// hit the stream name, or nil. Terms are comma-separated case-insensitive
// substrings.
func MatchKeyword(keywords []store.ExceptionKeyword, streamName string) *store.ExceptionKeyword {
	lower := strings.ToLower(streamName)
	for i := range keywords {
		k := &keywords[i]
		if !k.Enabled {
			continue
		}
		for _, term := range strings.Split(k.MatchTerms, ",") {
			term = strings.TrimSpace(strings.ToLower(term))
			if term != "" && strings.Contains(lower, term) {
				return k
			}
		}
	}
	return nil
}
