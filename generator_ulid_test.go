package fluxid

import "testing"

func TestBasicUlidGeneratorAlwaysReady(t *testing.T) {
	clock := NewFixedClock(42)
	g := NewBasicUlidGenerator(LayoutUlid64, clock, NewMathRandSource([32]byte{1}))
	for i := 0; i < 100; i++ {
		st := g.PollID()
		if !st.Ready {
			t.Fatalf("BasicUlidGenerator must always be Ready, got %+v", st)
		}
		if st.ID.Timestamp() != 42 {
			t.Fatalf("PollID() timestamp = %d, want 42", st.ID.Timestamp())
		}
	}
}

func TestSingleUlidGeneratorMonotonicIncrement(t *testing.T) {
	clock := NewFixedClock(100)
	g := NewSingleUlidGenerator(LayoutUlid64, clock, NewMathRandSource([32]byte{1}))

	first := g.PollID()
	second := g.PollID()
	if !first.Ready || !second.Ready {
		t.Fatalf("expected both polls Ready")
	}
	if second.ID.Random() != first.ID.Random()+1 {
		t.Fatalf("random field did not advance monotonically: %d -> %d", first.ID.Random(), second.ID.Random())
	}
}

func TestSingleUlidGeneratorRandomExhaustionPending(t *testing.T) {
	clock := NewFixedClock(100)
	g := NewSingleUlidGenerator(LayoutUlid64, clock, NewMathRandSource([32]byte{1}))
	maxRandom := (uint64(1) << LayoutUlid64.RandomBits) - 1
	g.current = NewUlid64(LayoutUlid64, 100, maxRandom)

	st := g.PollID()
	if st.Ready || st.YieldFor != 1 {
		t.Fatalf("exhausted poll = %+v, want Pending YieldFor=1", st)
	}
	clock.Advance(1)
	st = g.PollID()
	if !st.Ready {
		t.Fatalf("expected Ready after advancing the clock past exhaustion")
	}
}

func TestSingleUlidGeneratorClockRegressionPending(t *testing.T) {
	clock := NewFixedClock(100)
	g := NewSingleUlidGenerator(LayoutUlid64, clock, NewMathRandSource([32]byte{1}))
	g.PollID()
	clock.Set(10)
	st := g.PollID()
	if st.Ready || st.YieldFor != 90 {
		t.Fatalf("regressed poll = %+v, want Pending YieldFor=90", st)
	}
}

func TestLockUlidGeneratorConcurrentUniqueness(t *testing.T) {
	clock := NewFixedClock(500)
	g := NewLockUlidGenerator(LayoutUlid64, clock, NewMathRandSource([32]byte{1}))

	const n = 300
	ids := make(chan Ulid64, n)
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
			t.Fatalf("duplicate ulid %v produced under concurrent load", id)
		}
		seen[id.ToRaw()] = true
	}
	close(done)
}

func TestAtomicUlidGeneratorRequires64Bit(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for a 128-bit ulid layout")
		}
	}()
	NewAtomicUlidGenerator(LayoutUlid128, NewFixedClock(0), NewMathRandSource([32]byte{1}))
}

func TestAtomicUlidGeneratorConcurrentUniqueness(t *testing.T) {
	clock := NewFixedClock(500)
	g := NewAtomicUlidGenerator(LayoutUlid64, clock, NewMathRandSource([32]byte{1}))

	const n = 300
	ids := make(chan Ulid64, n)
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
			t.Fatalf("duplicate ulid %v produced under CAS contention", id)
		}
		seen[id.ToRaw()] = true
	}
	close(done)
}

func TestBasicUlid128GeneratorAlwaysReady(t *testing.T) {
	clock := NewFixedClock(7)
	g := NewBasicUlid128Generator(clock, NewMathRandSource([32]byte{1}))
	st := g.PollID()
	if !st.Ready || st.ID.Timestamp() != 7 {
		t.Fatalf("PollID() = %+v, want Ready ts=7", st)
	}
}

func TestSingleUlid128GeneratorMonotonicIncrement(t *testing.T) {
	clock := NewFixedClock(7)
	g := NewSingleUlid128Generator(clock, NewMathRandSource([32]byte{1}))
	first := g.PollID()
	second := g.PollID()
	if !first.Ready || !second.Ready {
		t.Fatalf("expected both polls Ready")
	}
	wantLo := first.ID.RandomLo() + 1
	if wantLo == 0 {
		if second.ID.RandomHi() != first.ID.RandomHi()+1 || second.ID.RandomLo() != 0 {
			t.Fatalf("expected carry into RandomHi, got %+v -> %+v", first.ID, second.ID)
		}
	} else if second.ID.RandomLo() != wantLo {
		t.Fatalf("RandomLo did not advance by one: %+v -> %+v", first.ID, second.ID)
	}
}

func TestLockUlid128GeneratorRandomExhaustionPending(t *testing.T) {
	clock := NewFixedClock(7)
	g := NewLockUlid128Generator(clock, NewMathRandSource([32]byte{1}))
	g.current = NewUlid128(7, 0xFFFF, ^uint64(0))

	st := g.PollID()
	if st.Ready || st.YieldFor != 1 {
		t.Fatalf("exhausted poll = %+v, want Pending YieldFor=1", st)
	}
	clock.Advance(1)
	st = g.PollID()
	if !st.Ready {
		t.Fatalf("expected Ready after advancing the clock past exhaustion")
	}
}
