package queue

import (
	"time"

	"github.com/minerforge/coreminer/internal/work"
)

// Disposition tags which path GetWork took, so tests can observe it
// directly (spec.md §9 design note).
type Disposition int

const (
	Fresh Disposition = iota
	Cloned
	Rolled
)

func (d Disposition) String() string {
	switch d {
	case Cloned:
		return "cloned"
	case Rolled:
		return "rolled"
	default:
		return "fresh"
	}
}

func isStale(u *work.Unit, now int64, scantime time.Duration, currentBlock string) bool {
	age := time.Duration(now - u.StagedAt)
	return age >= scantime || u.PrefixHex() != currentBlock
}

// GetWork pops the next unit and applies the clone/roll/fresh decision
// (spec.md §4.4, the "hardest logic in this module"):
//
//   - divide: if the unit is not itself a clone and its remaining nonce
//     space at hashDiv leaves room, the nonce space is split. The caller
//     receives a shallow copy starting at the lower (current) nonce
//     region; the original, advanced past the split point, is re-pushed.
//   - roll: otherwise, if the unit is eligible (server-granted rolltime,
//     not stale, rolls<11, not a clone), the timestamp is advanced by one
//     second and the nonce reset to zero. The caller receives the rolled
//     unit; a freshly-keyed copy of it is re-pushed to keep circulating.
//   - fresh: otherwise the popped unit is handed to the caller outright.
func (q *Queue) GetWork(hashDiv uint32, currentBlock string, scantime time.Duration, timeout time.Duration, now int64) (*work.Unit, Disposition, bool) {
	if hashDiv == 0 {
		hashDiv = 1
	}

	popped, ok := q.Pop(timeout)
	if !ok {
		return nil, Fresh, false
	}

	if !popped.IsClone {
		hashInc := uint64(work.MaxNonce) / uint64(hashDiv) * 2
		if uint64(popped.Nonce())+hashInc < uint64(work.MaxNonce) {
			low := popped.Clone()
			popped.SetNonce(popped.Nonce() + uint32(hashInc))
			popped.Divided = true
			q.recordLocal()
			q.Push(popped)
			return low, Cloned, true
		}
	}

	if popped.CanRoll() && !isStale(popped, now, scantime, currentBlock) {
		popped.RollTimestamp()
		rePushed := popped.ShallowCopy()
		q.recordLocal()
		q.Push(rePushed)
		return popped, Rolled, true
	}

	return popped, Fresh, true
}

func (q *Queue) recordLocal() {
	q.mu.Lock()
	q.local++
	q.mu.Unlock()
}
