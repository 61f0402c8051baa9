// Package work defines the WorkUnit scaffold shared by every pipeline
// stage, and the block-prefix membership set used to detect new blocks.
package work

import (
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"
)

// HeaderSize is the size in bytes of the block header scaffold.
const HeaderSize = 128

// MaxNonce is the size of the nonce space a single WorkUnit can scan.
// Mirrors cgminer's MAXTHREADS (the full uint32 nonce range).
const MaxNonce = 1 << 32

// MaxRolls is the roll-eligibility ceiling: a unit may still be rolled
// while Rolls < MaxRolls (spec.md §4.4 "rolls < 11"; original_source's
// can_roll checks work->rolls < 11, main.c:3588).
const MaxRolls = 11

const (
	ntimeOffset = 68
	nonceOffset = 76
)

var idSeq uint64

// NextID returns the next globally unique, monotonically increasing
// WorkUnit id. Safe for concurrent use.
func NextID() uint64 {
	return atomic.AddUint64(&idSeq, 1)
}

// PoolRef is a weak, index+generation reference to the Pool that produced
// a WorkUnit, so a removed-but-still-referenced Pool record can be kept
// alive until every WorkUnit referencing it has drained (spec.md §9).
type PoolRef struct {
	PoolNo     int
	Generation uint64
}

// Unit is a candidate block header scaffold plus hasher-specific
// pre-computed state. Fields the pipeline reasons about are named exactly
// per spec.md §3; midstate/hash1/hash/target are opaque hasher inputs.
type Unit struct {
	Data     [HeaderSize]byte
	Midstate [32]byte
	Hash1    [64]byte
	Hash     [32]byte
	Target   [32]byte

	Pool PoolRef

	ID       uint64
	StagedAt int64 // wall-clock Unix nanoseconds (time.Now().UnixNano(), not monotonic), set by the Stage Arbiter
	RollTime bool
	Rolls    int
	IsClone  bool
	IsMined  bool
	ThrID    int

	// Divided marks the original-side bookkeeping flag set when this unit
	// has had its nonce space divided off to produce a clone (spec.md
	// §4.4 "marks cloned=true"); distinct from IsClone, which marks the
	// handed-out shallow copy itself.
	Divided bool

	// AwaitingSubmit is set on the copy of a unit that a hasher dispatches
	// to the Submit Worker after a find; nothing reads or clears it after
	// dispatch. The original unit keeps scanning until restart (spec.md §3
	// lifecycle; SPEC_FULL.md §12).
	AwaitingSubmit bool
}

// New creates a zero-value Unit stamped with a fresh id.
func New() *Unit {
	return &Unit{ID: NextID()}
}

// Clone returns a shallow copy of u suitable for handing to a caller while
// the original is re-pushed onto the queue (spec.md §4.4 "divide").
func (u *Unit) Clone() *Unit {
	c := *u
	c.ID = NextID()
	c.IsClone = true
	c.Rolls = 0
	c.Divided = false
	return &c
}

// ShallowCopy returns a plain copy of u with a fresh id, used when the
// queue re-circulates a rolled unit without marking it a clone (spec.md
// §4.4 "roll").
func (u *Unit) ShallowCopy() *Unit {
	c := *u
	c.ID = NextID()
	return &c
}

// Nonce reads the current nonce field (bytes 76..79, big-endian).
func (u *Unit) Nonce() uint32 {
	return binary.BigEndian.Uint32(u.Data[nonceOffset : nonceOffset+4])
}

// SetNonce writes the nonce field.
func (u *Unit) SetNonce(n uint32) {
	binary.BigEndian.PutUint32(u.Data[nonceOffset:nonceOffset+4], n)
}

// Timestamp reads the current header timestamp (bytes 68..71, big-endian).
func (u *Unit) Timestamp() uint32 {
	return binary.BigEndian.Uint32(u.Data[ntimeOffset : ntimeOffset+4])
}

// SetTimestamp writes the header timestamp field.
func (u *Unit) SetTimestamp(t uint32) {
	binary.BigEndian.PutUint32(u.Data[ntimeOffset:ntimeOffset+4], t)
}

// RollTimestamp advances the timestamp by one second, resets the nonce to
// zero, and increments the roll counter. Mirrors cgminer's roll_work.
func (u *Unit) RollTimestamp() {
	u.SetTimestamp(u.Timestamp() + 1)
	u.SetNonce(0)
	u.Rolls++
}

// CanRoll reports whether this unit is eligible for timestamp rolling
// (spec.md §4.4): server granted rolltime, not a clone, under the roll
// ceiling (rolls < 11). Staleness is checked separately by the caller
// (it needs a current-block reference this package does not hold).
func (u *Unit) CanRoll() bool {
	return u.RollTime && u.Rolls < MaxRolls && !u.IsClone
}

// PrefixHex returns the hex-encoded first 18 bytes of Data, used as the
// block-fingerprint key (spec.md §3, §4.3).
func (u *Unit) PrefixHex() string {
	return hex.EncodeToString(u.Data[:18])
}
