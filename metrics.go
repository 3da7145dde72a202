package fluxid

import "sync/atomic"

// GenMetrics is a snapshot of a lock-based generator's internal counters.
//
// All counters only increase until ResetMetrics zeroes them, and are read
// atomically; the
// returned struct is a plain value, safe to use concurrently.
type GenMetrics struct {
	Generated        int64 // Total IDs successfully produced
	ClockBackward    int64 // Clock regression events observed (including recovered ones)
	ClockBackwardErr int64 // Regressions beyond tolerance that escalated to a ClockError
	SequenceOverflow int64 // Times the per-millisecond sequence was exhausted
}

// genCounters holds the atomic cells backing GenMetrics. No padding
// separates them from the generator's other fields.
type genCounters struct {
	generated        atomic.Int64
	clockBackward    atomic.Int64
	clockBackwardErr atomic.Int64
	sequenceOverflow atomic.Int64
}

func (c *genCounters) snapshot() GenMetrics {
	return GenMetrics{
		Generated:        c.generated.Load(),
		ClockBackward:    c.clockBackward.Load(),
		ClockBackwardErr: c.clockBackwardErr.Load(),
		SequenceOverflow: c.sequenceOverflow.Load(),
	}
}

func (c *genCounters) reset() {
	c.generated.Store(0)
	c.clockBackward.Store(0)
	c.clockBackwardErr.Store(0)
	c.sequenceOverflow.Store(0)
}
