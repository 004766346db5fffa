package channels

import (
	"fmt"
	"sort"

	"github.com/snapetech/eventarr/internal/store"
)

// blockSize is the numbering granularity: groups claim 10-wide blocks
// starting on x01 boundaries.
const blockSize = 10

// Allocator hands out channel numbers inside the configured global range.
// Build one per pipeline tick from the current groups and used numbers; it
// is not safe for concurrent use.
type Allocator struct {
	rangeStart int
	rangeEnd   int
	used       map[int]bool
	starts     map[int64]int
}

// NewAllocator resolves every group's start number up front. Manual groups
// keep their configured start, manual groups without one claim the next free
// x01 boundary, and auto groups stack after each other in sort order with a
// block sized by their last observed stream count, capped where a manual
// group's block begins.
func NewAllocator(cfg store.LifecycleSettings, groups []store.Group, used map[int]bool) *Allocator {
	a := &Allocator{
		rangeStart: cfg.ChannelRangeStart,
		rangeEnd:   cfg.ChannelRangeEnd,
		used:       used,
		starts:     make(map[int64]int, len(groups)),
	}
	if a.rangeStart < 1 {
		a.rangeStart = 1
	}
	if a.rangeEnd < a.rangeStart {
		a.rangeEnd = a.rangeStart + 9998
	}
	if a.used == nil {
		a.used = make(map[int]bool)
	}

	// Manual starts claim their boundaries first so auto blocks route
	// around them.
	var manualStarts []int
	for _, g := range groups {
		if g.ChannelAssignmentMode != "auto" && g.ChannelStartNumber != nil {
			a.starts[g.ID] = int(*g.ChannelStartNumber)
			manualStarts = append(manualStarts, int(*g.ChannelStartNumber))
		}
	}
	taken := func(b int) bool {
		for _, m := range manualStarts {
			if m >= b && m < b+blockSize {
				return true
			}
		}
		return false
	}
	for _, g := range groups {
		if g.ChannelAssignmentMode == "auto" || g.ChannelStartNumber != nil {
			continue
		}
		b := boundaryAtOrAfter(a.rangeStart)
		for taken(b) {
			b += blockSize
		}
		a.starts[g.ID] = b
		manualStarts = append(manualStarts, b)
	}
	sort.Ints(manualStarts)

	cursor := boundaryAtOrAfter(a.rangeStart)
	for _, g := range groups {
		if g.ChannelAssignmentMode != "auto" {
			continue
		}
		for taken(cursor) {
			cursor += blockSize
		}
		a.starts[g.ID] = cursor
		block := blocksFor(g.TotalStreamCount)
		// Cap the block where the next occupied start begins.
		for _, m := range manualStarts {
			if m > cursor && m < cursor+block {
				block = boundaryAtOrAfter(m) - cursor
				break
			}
		}
		cursor += block
	}
	return a
}

func boundaryAtOrAfter(n int) int {
	if n%blockSize == 1 {
		return n
	}
	return (n/blockSize)*blockSize + 1
}

// blocksFor sizes a group's block from its stream count, one 10-block
// minimum.
func blocksFor(streams int) int {
	if streams <= 0 {
		return blockSize
	}
	return ((streams + blockSize - 1) / blockSize) * blockSize
}

// Start returns the resolved start number for a group.
func (a *Allocator) Start(groupID int64) int {
	if s, ok := a.starts[groupID]; ok {
		return s
	}
	return a.rangeStart
}

// Next claims the smallest unused number at or above the group's start,
// inside the global range.
func (a *Allocator) Next(groupID int64) (int, error) {
	n := a.Start(groupID)
	if n < a.rangeStart {
		n = a.rangeStart
	}
	for ; n <= a.rangeEnd; n++ {
		if !a.used[n] {
			a.used[n] = true
			return n, nil
		}
	}
	return 0, fmt.Errorf("channels: range %d-%d exhausted for group %d", a.rangeStart, a.rangeEnd, groupID)
}

// Release frees a number so a renumber inside one tick can reuse it.
func (a *Allocator) Release(n int) {
	delete(a.used, n)
}

// InRange reports whether a number sits inside the configured global range.
func (a *Allocator) InRange(n int) bool {
	return n >= a.rangeStart && n <= a.rangeEnd
}
