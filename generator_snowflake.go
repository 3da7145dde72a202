package fluxid

import (
	"sync"
	"sync/atomic"
)

// snowflakeNext computes the state-transition table shared by all three
// Snowflake generator variants: given the previously
// installed ID and the current timestamp reading, decide whether the next
// state is a sequence advance, a rollover to a new timestamp, or a Pending
// signal (sequence exhausted, or the clock moved backwards).
func snowflakeNext(current SnowflakeID, now uint64) (next SnowflakeID, status Status[SnowflakeID], ready bool) {
	last := current.Timestamp()
	switch {
	case now == last:
		if current.HasSequenceRoom() {
			return current.IncrementSequence(), Status[SnowflakeID]{}, true
		}
		return current, PendingStatus[SnowflakeID](1), false
	case now > last:
		return current.RolloverToTimestamp(now), Status[SnowflakeID]{}, true
	default: // now < last: clock moved backwards
		return current, PendingStatus[SnowflakeID](int64(last - now)), false
	}
}

// SingleSnowflakeGenerator is the V1, single-owner generator variant: state
// is a plain field, mutated by read-modify-write with no synchronization.
// Safe only when the caller guarantees exclusive access (e.g. one
// generator per worker goroutine, never shared).
type SingleSnowflakeGenerator struct {
	layout  BitLayout
	time    TimeSource
	current SnowflakeID
}

// NewSingleSnowflakeGenerator creates a V1 generator for machineID, seeded
// at timestamp/sequence zero.
func NewSingleSnowflakeGenerator(layout BitLayout, machineID uint64, time TimeSource) *SingleSnowflakeGenerator {
	return &SingleSnowflakeGenerator{
		layout:  layout,
		time:    time,
		current: NewSnowflakeID(layout, 0, machineID, 0),
	}
}

// PollID attempts to produce the next ID. See snowflakeNext for the
// transition table.
func (g *SingleSnowflakeGenerator) PollID() Status[SnowflakeID] {
	now := uint64(g.time.CurrentMillis())
	next, pending, ready := snowflakeNext(g.current, now)
	if !ready {
		return pending
	}
	g.current = next
	return ReadyStatus(next)
}

// NextID loops on Pending, invoking yield with the YieldFor hint each time,
// until an ID is produced.
func (g *SingleSnowflakeGenerator) NextID(yield func(int64)) SnowflakeID {
	for {
		st := g.PollID()
		if st.Ready {
			return st.ID
		}
		yield(st.YieldFor)
	}
}

// LockSnowflakeGenerator is the V2, lock-based generator variant: state
// lives behind a mutex, safe for concurrent use from any number of
// goroutines. Fairness follows sync.Mutex's own (unspecified, but
// practically FIFO-ish under contention) scheduling.
type LockSnowflakeGenerator struct {
	layout          BitLayout
	time            TimeSource
	toleranceMillis int64 // 0 disables the tolerance check entirely

	mu      sync.Mutex
	current SnowflakeID

	counters genCounters
}

// NewLockSnowflakeGenerator creates a V2 generator for machineID. A
// toleranceMillis of 0 means TryPollID never escalates a clock regression
// to a *ClockError; it behaves identically to PollID.
func NewLockSnowflakeGenerator(layout BitLayout, machineID uint64, time TimeSource, toleranceMillis int64) *LockSnowflakeGenerator {
	return &LockSnowflakeGenerator{
		layout:          layout,
		time:            time,
		toleranceMillis: toleranceMillis,
		current:         NewSnowflakeID(layout, 0, machineID, 0),
	}
}

// PollID attempts to produce the next ID. This variant never errors: a
// clock regression beyond any configured tolerance still surfaces as
// Pending, never a hard failure. Use TryPollID to escalate instead.
func (g *LockSnowflakeGenerator) PollID() Status[SnowflakeID] {
	st, _ := g.pollLocked(false)
	return st
}

// TryPollID is PollID's fallible counterpart: if the time source has
// regressed by more than toleranceMillis, it returns a *ClockError instead
// of an indefinite Pending. This is the Go analogue of the lock-poisoning
// surface a mutex-guarded generator has in languages where a poisoned
// mutex is itself recoverable as an error.
func (g *LockSnowflakeGenerator) TryPollID() (Status[SnowflakeID], error) {
	return g.pollLocked(true)
}

func (g *LockSnowflakeGenerator) pollLocked(checkTolerance bool) (Status[SnowflakeID], error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := uint64(g.time.CurrentMillis())
	next, pending, ready := snowflakeNext(g.current, now)
	if !ready {
		if now < g.current.Timestamp() {
			g.counters.clockBackward.Add(1)
			if checkTolerance && g.toleranceMillis > 0 && pending.YieldFor > g.toleranceMillis {
				g.counters.clockBackwardErr.Add(1)
				return Status[SnowflakeID]{}, &ClockError{
					CurrentMillis:   int64(now),
					LastMillis:      int64(g.current.Timestamp()),
					ToleranceMillis: g.toleranceMillis,
					MachineID:       g.current.MachineID(),
				}
			}
		} else {
			g.counters.sequenceOverflow.Add(1)
		}
		return pending, nil
	}
	g.current = next
	g.counters.generated.Add(1)
	return ReadyStatus(next), nil
}

// GetMetrics returns a consistent snapshot of the generator's counters.
func (g *LockSnowflakeGenerator) GetMetrics() GenMetrics { return g.counters.snapshot() }

// ResetMetrics zeroes all counters. Primarily useful in tests; production
// consumers should prefer monotonically increasing counters for rate
// calculation.
func (g *LockSnowflakeGenerator) ResetMetrics() { g.counters.reset() }

// NextID loops on Pending, invoking yield with the YieldFor hint each time.
func (g *LockSnowflakeGenerator) NextID(yield func(int64)) SnowflakeID {
	for {
		st := g.PollID()
		if st.Ready {
			return st.ID
		}
		yield(st.YieldFor)
	}
}

// AtomicSnowflakeGenerator is the V3, lock-free generator variant. State is
// held in a single atomic.Uint64 cell, CAS-updated on every successful
// poll. Only available for 64-bit layouts, since Go's sync/atomic offers
// no genuinely atomic 128-bit primitive. On a lost CAS race, PollID
// returns Pending{YieldFor: 0}: a hint that the caller should retry
// immediately after yielding to the scheduler. The retry loop is owned by
// the caller (NextID implements the simplest such loop).
type AtomicSnowflakeGenerator struct {
	layout BitLayout
	time   TimeSource
	state  atomic.Uint64
}

// NewAtomicSnowflakeGenerator creates a V3 generator for machineID. Panics
// if layout.SupportsAtomic64() is false.
func NewAtomicSnowflakeGenerator(layout BitLayout, machineID uint64, time TimeSource) *AtomicSnowflakeGenerator {
	if !layout.SupportsAtomic64() {
		panic("fluxid: atomic generator requires a 64-bit layout")
	}
	g := &AtomicSnowflakeGenerator{layout: layout, time: time}
	g.state.Store(NewSnowflakeID(layout, 0, machineID, 0).ToRaw())
	return g
}

// PollID attempts to produce the next ID via load/compute/CAS.
func (g *AtomicSnowflakeGenerator) PollID() Status[SnowflakeID] {
	now := uint64(g.time.CurrentMillis())

	currentRaw := g.state.Load()
	current := SnowflakeIDFromRaw(g.layout, currentRaw)

	next, pending, ready := snowflakeNext(current, now)
	if !ready {
		return pending
	}

	if g.state.CompareAndSwap(currentRaw, next.ToRaw()) {
		return ReadyStatus(next)
	}
	// Another goroutine won the race; hint an immediate retry.
	return PendingStatus[SnowflakeID](0)
}

// NextID loops on Pending (including CAS-race retries), invoking yield
// with the YieldFor hint each time.
func (g *AtomicSnowflakeGenerator) NextID(yield func(int64)) SnowflakeID {
	for {
		st := g.PollID()
		if st.Ready {
			return st.ID
		}
		yield(st.YieldFor)
	}
}
