package fluxid

import "sync"

// BasicUlid128Generator is the stateless 128-bit ULID variant: every poll
// draws a fresh timestamp and fresh 80-bit random value. No portable
// 128-bit CAS exists, so this (and SingleUlid128Generator /
// LockUlid128Generator below) are the only variants offered for this
// width — there is no atomic/V3 128-bit generator.
type BasicUlid128Generator struct {
	time TimeSource
	rnd  RandSource
}

// NewBasicUlid128Generator builds a stateless 128-bit ULID generator.
func NewBasicUlid128Generator(time TimeSource, rnd RandSource) *BasicUlid128Generator {
	return &BasicUlid128Generator{time: time, rnd: rnd}
}

// PollID always returns Ready.
func (g *BasicUlid128Generator) PollID() Status[Ulid128] {
	now := uint64(g.time.CurrentMillis())
	hi16 := g.rnd.Uint64() & 0xFFFF
	lo64 := g.rnd.Uint64()
	return ReadyStatus(NewUlid128(now, hi16, lo64))
}

// SingleUlid128Generator is the V1, single-owner monotonic 128-bit ULID
// generator.
type SingleUlid128Generator struct {
	time    TimeSource
	rnd     RandSource
	current Ulid128
}

// NewSingleUlid128Generator builds a V1 monotonic 128-bit ULID generator.
func NewSingleUlid128Generator(time TimeSource, rnd RandSource) *SingleUlid128Generator {
	return &SingleUlid128Generator{time: time, rnd: rnd, current: NewUlid128(0, rnd.Uint64()&0xFFFF, rnd.Uint64())}
}

// PollID attempts to produce the next monotonic 128-bit ULID.
func (g *SingleUlid128Generator) PollID() Status[Ulid128] {
	now := uint64(g.time.CurrentMillis())
	last := g.current.Timestamp()
	switch {
	case now == last:
		if !g.current.HasRandomRoom() {
			return PendingStatus[Ulid128](1)
		}
		g.current = g.current.IncrementRandom()
		return ReadyStatus(g.current)
	case now > last:
		g.current = g.current.RolloverToTimestamp(now, g.rnd.Uint64()&0xFFFF, g.rnd.Uint64())
		return ReadyStatus(g.current)
	default:
		return PendingStatus[Ulid128](int64(last - now))
	}
}

// NextID loops on Pending until an ID is produced.
func (g *SingleUlid128Generator) NextID(yield func(int64)) Ulid128 {
	for {
		st := g.PollID()
		if st.Ready {
			return st.ID
		}
		yield(st.YieldFor)
	}
}

// LockUlid128Generator is the V2, lock-based monotonic 128-bit ULID
// generator.
type LockUlid128Generator struct {
	time TimeSource
	rnd  RandSource

	mu      sync.Mutex
	current Ulid128
}

// NewLockUlid128Generator builds a V2 monotonic 128-bit ULID generator.
func NewLockUlid128Generator(time TimeSource, rnd RandSource) *LockUlid128Generator {
	return &LockUlid128Generator{time: time, rnd: rnd, current: NewUlid128(0, rnd.Uint64()&0xFFFF, rnd.Uint64())}
}

// PollID attempts to produce the next monotonic 128-bit ULID under the
// generator's mutex.
func (g *LockUlid128Generator) PollID() Status[Ulid128] {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := uint64(g.time.CurrentMillis())
	last := g.current.Timestamp()
	switch {
	case now == last:
		if !g.current.HasRandomRoom() {
			return PendingStatus[Ulid128](1)
		}
		g.current = g.current.IncrementRandom()
		return ReadyStatus(g.current)
	case now > last:
		g.current = g.current.RolloverToTimestamp(now, g.rnd.Uint64()&0xFFFF, g.rnd.Uint64())
		return ReadyStatus(g.current)
	default:
		return PendingStatus[Ulid128](int64(last - now))
	}
}

// NextID loops on Pending until an ID is produced.
func (g *LockUlid128Generator) NextID(yield func(int64)) Ulid128 {
	for {
		st := g.PollID()
		if st.Ready {
			return st.ID
		}
		yield(st.YieldFor)
	}
}
