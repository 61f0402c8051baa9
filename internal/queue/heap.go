package queue

import (
	"container/heap"

	"github.com/minerforge/coreminer/internal/work"
)

// items is a container/heap.Interface ordered primarily by StagedAt
// ascending (oldest first), secondarily by ID — the idiomatic Go
// structure for this dual ordering (spec.md §4.4; see DESIGN.md for why
// no pack library replaces container/heap here).
type items []*work.Unit

func (it items) Len() int { return len(it) }

func (it items) Less(i, j int) bool {
	if it[i].StagedAt != it[j].StagedAt {
		return it[i].StagedAt < it[j].StagedAt
	}
	return it[i].ID < it[j].ID
}

func (it items) Swap(i, j int) { it[i], it[j] = it[j], it[i] }

func (it *items) Push(x any) {
	*it = append(*it, x.(*work.Unit))
}

func (it *items) Pop() any {
	old := *it
	n := len(old)
	u := old[n-1]
	old[n-1] = nil
	*it = old[:n-1]
	return u
}

var _ = heap.Interface(&items{})
