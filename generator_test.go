package fluxid

import "testing"

func TestSingleSnowflakeGeneratorSequenceAdvance(t *testing.T) {
	clock := NewFixedClock(100)
	g := NewSingleSnowflakeGenerator(LayoutDefault, 7, clock)

	first := g.PollID()
	if !first.Ready || first.ID.Timestamp() != 100 || first.ID.Sequence() != 0 {
		t.Fatalf("first poll = %+v, want Ready ts=100 seq=0", first)
	}
	second := g.PollID()
	if !second.Ready || second.ID.Sequence() != 1 {
		t.Fatalf("second poll = %+v, want Ready seq=1", second)
	}
}

func TestSingleSnowflakeGeneratorSequenceExhaustionPending(t *testing.T) {
	clock := NewFixedClock(100)
	g := NewSingleSnowflakeGenerator(LayoutDefault, 1, clock)
	for i := 0; i < 4096; i++ {
		if st := g.PollID(); !st.Ready {
			t.Fatalf("poll %d unexpectedly Pending: %+v", i, st)
		}
	}
	st := g.PollID()
	if st.Ready || st.YieldFor != 1 {
		t.Fatalf("exhausted poll = %+v, want Pending YieldFor=1", st)
	}
	clock.Advance(1)
	st = g.PollID()
	if !st.Ready || st.ID.Sequence() != 0 {
		t.Fatalf("poll after advance = %+v, want Ready seq=0", st)
	}
}

func TestSingleSnowflakeGeneratorClockRegressionPending(t *testing.T) {
	clock := NewFixedClock(100)
	g := NewSingleSnowflakeGenerator(LayoutDefault, 1, clock)
	g.PollID()
	clock.Set(50)
	st := g.PollID()
	if st.Ready || st.YieldFor != 50 {
		t.Fatalf("regressed poll = %+v, want Pending YieldFor=50", st)
	}
}

func TestSingleSnowflakeGeneratorNextIDYields(t *testing.T) {
	clock := NewFixedClock(100)
	g := NewSingleSnowflakeGenerator(LayoutDefault, 1, clock)
	for i := 0; i < 4096; i++ {
		g.PollID()
	}
	yields := 0
	id := g.NextID(func(hint int64) {
		yields++
		clock.Advance(hint)
	})
	if yields == 0 {
		t.Fatalf("expected at least one yield before producing an id")
	}
	if id.Sequence() != 0 {
		t.Fatalf("id after yield = %+v, want seq=0", id)
	}
}

func TestLockSnowflakeGeneratorConcurrentUniqueness(t *testing.T) {
	clock := NewFixedClock(1000)
	g := NewLockSnowflakeGenerator(LayoutDefault, 3, clock, 0)

	const n = 500
	ids := make(chan SnowflakeID, n)
	done := make(chan struct{})
	for w := 0; w < 8; w++ {
		go func() {
			for {
				select {
				case <-done:
					return
				default:
				}
				if st := g.PollID(); st.Ready {
					select {
					case ids <- st.ID:
					default:
						return
					}
				}
			}
		}()
	}

	seen := make(map[uint64]bool)
	for i := 0; i < n; i++ {
		id := <-ids
		if seen[id.ToRaw()] {
			t.Fatalf("duplicate id %v produced under concurrent load", id)
		}
		seen[id.ToRaw()] = true
	}
	close(done)
}

func TestLockSnowflakeGeneratorTryPollIDEscalatesClockError(t *testing.T) {
	clock := NewFixedClock(1000)
	g := NewLockSnowflakeGenerator(LayoutDefault, 1, clock, 10)
	g.TryPollID()
	clock.Set(500)

	_, err := g.TryPollID()
	if err == nil {
		t.Fatalf("expected *ClockError for a regression beyond tolerance")
	}
	if !IsClockError(err) {
		t.Fatalf("expected IsClockError(err) to be true, got %v", err)
	}
}

func TestLockSnowflakeGeneratorTryPollIDWithinToleranceStaysPending(t *testing.T) {
	clock := NewFixedClock(1000)
	g := NewLockSnowflakeGenerator(LayoutDefault, 1, clock, 10)
	g.TryPollID()
	clock.Set(995)

	st, err := g.TryPollID()
	if err != nil {
		t.Fatalf("unexpected error within tolerance: %v", err)
	}
	if st.Ready {
		t.Fatalf("expected Pending for a regressed clock, got Ready")
	}
}

func TestAtomicSnowflakeGeneratorRequiresAtomicLayout(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for a non-64-bit layout")
		}
	}()
	badLayout := BitLayout{Width: 128, TimestampBits: 48, MachineBits: 40, SequenceBits: 40}
	NewAtomicSnowflakeGenerator(badLayout, 1, NewFixedClock(0))
}

func TestAtomicSnowflakeGeneratorConcurrentUniqueness(t *testing.T) {
	clock := NewFixedClock(1000)
	g := NewAtomicSnowflakeGenerator(LayoutDefault, 9, clock)

	const n = 500
	ids := make(chan SnowflakeID, n)
	done := make(chan struct{})
	for w := 0; w < 8; w++ {
		go func() {
			for {
				select {
				case <-done:
					return
				default:
				}
				if st := g.PollID(); st.Ready {
					select {
					case ids <- st.ID:
					default:
						return
					}
				}
			}
		}()
	}

	seen := make(map[uint64]bool)
	for i := 0; i < n; i++ {
		id := <-ids
		if seen[id.ToRaw()] {
			t.Fatalf("duplicate id %v produced under CAS contention", id)
		}
		seen[id.ToRaw()] = true
	}
	close(done)
}

func TestLockSnowflakeGeneratorMetrics(t *testing.T) {
	clock := NewFixedClock(100)
	g := NewLockSnowflakeGenerator(LayoutDefault, 1, clock, 10)

	for i := 0; i < 4096; i++ {
		if st := g.PollID(); !st.Ready {
			t.Fatalf("poll %d unexpectedly Pending", i)
		}
	}
	g.PollID() // sequence exhausted
	clock.Set(50)
	g.PollID()      // recoverable regression
	g.TryPollID()   // regression beyond tolerance

	m := g.GetMetrics()
	if m.Generated != 4096 {
		t.Errorf("Generated = %d, want 4096", m.Generated)
	}
	if m.SequenceOverflow != 1 {
		t.Errorf("SequenceOverflow = %d, want 1", m.SequenceOverflow)
	}
	if m.ClockBackward != 2 {
		t.Errorf("ClockBackward = %d, want 2", m.ClockBackward)
	}
	if m.ClockBackwardErr != 1 {
		t.Errorf("ClockBackwardErr = %d, want 1", m.ClockBackwardErr)
	}

	g.ResetMetrics()
	if m := g.GetMetrics(); m.Generated != 0 || m.ClockBackward != 0 {
		t.Errorf("ResetMetrics() left counters non-zero: %+v", m)
	}
}
