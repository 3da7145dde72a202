package fluxid

import (
	"sync"
	"sync/atomic"
)

// ulidNext is the monotonic-mode transition table: identical to
// snowflakeNext with the random field standing in for the sequence.
func ulidNext(layout UlidLayout, current Ulid64, now uint64, rnd RandSource) (next Ulid64, status Status[Ulid64], ready bool) {
	last := current.Timestamp()
	switch {
	case now == last:
		if current.HasRandomRoom() {
			return current.IncrementRandom(), Status[Ulid64]{}, true
		}
		return current, PendingStatus[Ulid64](1), false
	case now > last:
		fresh := rnd.Uint64() & ((uint64(1) << layout.RandomBits) - 1)
		return current.RolloverToTimestamp(now, fresh), Status[Ulid64]{}, true
	default:
		return current, PendingStatus[Ulid64](int64(last - now)), false
	}
}

// BasicUlidGenerator is the stateless ULID variant: every poll draws a
// fresh timestamp and a fresh random value and returns Ready
// unconditionally, sacrificing intra-millisecond ordering for zero
// contention and no shared mutable state at all.
type BasicUlidGenerator struct {
	layout UlidLayout
	time   TimeSource
	rnd    RandSource
}

// NewBasicUlidGenerator builds a stateless ULID generator.
func NewBasicUlidGenerator(layout UlidLayout, time TimeSource, rnd RandSource) *BasicUlidGenerator {
	return &BasicUlidGenerator{layout: layout, time: time, rnd: rnd}
}

// PollID always returns Ready: there is no sequence to exhaust and no
// state to race on.
func (g *BasicUlidGenerator) PollID() Status[Ulid64] {
	now := uint64(g.time.CurrentMillis())
	random := g.rnd.Uint64() & ((uint64(1) << g.layout.RandomBits) - 1)
	return ReadyStatus(NewUlid64(g.layout, now, random))
}

// SingleUlidGenerator is the V1, single-owner monotonic ULID generator.
type SingleUlidGenerator struct {
	layout  UlidLayout
	time    TimeSource
	rnd     RandSource
	current Ulid64
}

// NewSingleUlidGenerator builds a V1 monotonic ULID generator seeded at
// timestamp zero with a freshly drawn random value.
func NewSingleUlidGenerator(layout UlidLayout, time TimeSource, rnd RandSource) *SingleUlidGenerator {
	seed := rnd.Uint64() & ((uint64(1) << layout.RandomBits) - 1)
	return &SingleUlidGenerator{layout: layout, time: time, rnd: rnd, current: NewUlid64(layout, 0, seed)}
}

// PollID attempts to produce the next monotonic ULID.
func (g *SingleUlidGenerator) PollID() Status[Ulid64] {
	now := uint64(g.time.CurrentMillis())
	next, pending, ready := ulidNext(g.layout, g.current, now, g.rnd)
	if !ready {
		return pending
	}
	g.current = next
	return ReadyStatus(next)
}

// NextID loops on Pending until an ID is produced.
func (g *SingleUlidGenerator) NextID(yield func(int64)) Ulid64 {
	for {
		st := g.PollID()
		if st.Ready {
			return st.ID
		}
		yield(st.YieldFor)
	}
}

// LockUlidGenerator is the V2, lock-based monotonic ULID generator.
type LockUlidGenerator struct {
	layout UlidLayout
	time   TimeSource
	rnd    RandSource

	mu      sync.Mutex
	current Ulid64
}

// NewLockUlidGenerator builds a V2 monotonic ULID generator.
func NewLockUlidGenerator(layout UlidLayout, time TimeSource, rnd RandSource) *LockUlidGenerator {
	seed := rnd.Uint64() & ((uint64(1) << layout.RandomBits) - 1)
	return &LockUlidGenerator{layout: layout, time: time, rnd: rnd, current: NewUlid64(layout, 0, seed)}
}

// PollID attempts to produce the next monotonic ULID under the generator's
// mutex.
func (g *LockUlidGenerator) PollID() Status[Ulid64] {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := uint64(g.time.CurrentMillis())
	next, pending, ready := ulidNext(g.layout, g.current, now, g.rnd)
	if !ready {
		return pending
	}
	g.current = next
	return ReadyStatus(next)
}

// NextID loops on Pending until an ID is produced.
func (g *LockUlidGenerator) NextID(yield func(int64)) Ulid64 {
	for {
		st := g.PollID()
		if st.Ready {
			return st.ID
		}
		yield(st.YieldFor)
	}
}

// AtomicUlidGenerator is the V3, lock-free monotonic ULID generator.
// Random-field regeneration on rollover happens outside the CAS: when an
// attempt observes a newer timestamp, a fresh random value is drawn before
// the swap, and that draw is discarded if the CAS fails.
type AtomicUlidGenerator struct {
	layout UlidLayout
	time   TimeSource
	rnd    RandSource
	state  atomic.Uint64
}

// NewAtomicUlidGenerator builds a V3 monotonic ULID generator. Only
// LayoutUlid64 (or any other 64-bit UlidLayout) is supported.
func NewAtomicUlidGenerator(layout UlidLayout, time TimeSource, rnd RandSource) *AtomicUlidGenerator {
	if layout.Width != 64 {
		panic("fluxid: atomic ulid generator requires a 64-bit layout")
	}
	g := &AtomicUlidGenerator{layout: layout, time: time, rnd: rnd}
	seed := rnd.Uint64() & ((uint64(1) << layout.RandomBits) - 1)
	g.state.Store(NewUlid64(layout, 0, seed).ToRaw())
	return g
}

// PollID attempts to produce the next monotonic ULID via load/compute/CAS.
func (g *AtomicUlidGenerator) PollID() Status[Ulid64] {
	now := uint64(g.time.CurrentMillis())

	currentRaw := g.state.Load()
	current := Ulid64FromRaw(g.layout, currentRaw)

	next, pending, ready := ulidNext(g.layout, current, now, g.rnd)
	if !ready {
		return pending
	}

	if g.state.CompareAndSwap(currentRaw, next.ToRaw()) {
		return ReadyStatus(next)
	}
	return PendingStatus[Ulid64](0)
}

// NextID loops on Pending (including CAS-race retries) until an ID is
// produced.
func (g *AtomicUlidGenerator) NextID(yield func(int64)) Ulid64 {
	for {
		st := g.PollID()
		if st.Ready {
			return st.ID
		}
		yield(st.YieldFor)
	}
}
