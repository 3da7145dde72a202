package fluxid

import (
	"fmt"
	"math"
	"time"
)

// BitLayout describes how a raw W-bit integer is partitioned, MSB to LSB,
// into a reserved region, a timestamp field, a machine-id field, and a
// sequence field. R + TimestampBits + MachineBits + SequenceBits must equal
// Width.
//
// Predefined layouts below mirror the trade-offs documented by the original
// Snowflake format and its common derivatives: wider machine-id fields
// support more concurrent shards at the cost of per-worker throughput or
// total lifespan.
type BitLayout struct {
	Width          int // total bit width of the raw integer
	ReservedBits   int
	TimestampBits  int
	MachineBits    int
	SequenceBits   int
	TimeUnit       time.Duration
	Epoch          time.Time
	CustomEpochMs  int64
}

var (
	// LayoutDefault is the classic Twitter Snowflake layout: 1 reserved (sign)
	// bit, 41-bit timestamp, 10-bit machine-id, 12-bit sequence.
	LayoutDefault = BitLayout{Width: 64, ReservedBits: 1, TimestampBits: 41, MachineBits: 10, SequenceBits: 12, TimeUnit: time.Millisecond}

	// LayoutWide trades sequence throughput for machine-id space, useful when
	// a deployment needs more independently-addressable shards than workers
	// generating at full throughput on any one of them.
	LayoutWide = BitLayout{Width: 64, ReservedBits: 1, TimestampBits: 41, MachineBits: 13, SequenceBits: 9, TimeUnit: time.Millisecond}

	// LayoutLongLife drops the reserved bit to extend the timestamp field to
	// 42 bits, pushing the wraparound date far into the future; it also
	// widens the machine-id field to 12 bits at the expense of the sequence.
	LayoutLongLife = BitLayout{Width: 64, ReservedBits: 0, TimestampBits: 42, MachineBits: 12, SequenceBits: 10, TimeUnit: time.Millisecond}

	// LayoutCoarse uses a 10ms time unit (Sonyflake-style) to extend
	// lifespan further, trading per-unit sequence resolution.
	LayoutCoarse = BitLayout{Width: 64, ReservedBits: 0, TimestampBits: 39, MachineBits: 16, SequenceBits: 9, TimeUnit: 10 * time.Millisecond}
)

// ErrInvalidBitLayout reports that a BitLayout's field widths are
// structurally invalid (don't sum to Width, or contain a negative field).
type ErrInvalidBitLayout struct {
	Layout BitLayout
	Reason string
}

func (e *ErrInvalidBitLayout) Error() string {
	return fmt.Sprintf("fluxid: invalid bit layout %+v: %s", e.Layout, e.Reason)
}

// Validate checks that the layout's field widths are structurally sound.
func (l BitLayout) Validate() error {
	if l.Width != 64 {
		return &ErrInvalidBitLayout{l, "width must be 64 (128-bit ids use the ulid layouts)"}
	}
	if l.ReservedBits < 0 || l.TimestampBits < 0 || l.MachineBits < 0 || l.SequenceBits < 0 {
		return &ErrInvalidBitLayout{l, "field widths must be non-negative"}
	}
	sum := l.ReservedBits + l.TimestampBits + l.MachineBits + l.SequenceBits
	if sum != l.Width {
		return &ErrInvalidBitLayout{l, fmt.Sprintf("field widths sum to %d, want %d", sum, l.Width)}
	}
	if l.TimestampBits == 0 {
		return &ErrInvalidBitLayout{l, "timestamp field must be non-zero"}
	}
	if l.TimeUnit <= 0 {
		return &ErrInvalidBitLayout{l, "time unit must be positive"}
	}
	return nil
}

// SupportsAtomic64 reports whether the layout's raw integer fits in a single
// machine-word-sized atomic cell, a precondition for the V3 lock-free
// generator variant (see AtomicSnowflakeGenerator in generator_snowflake.go).
func (l BitLayout) SupportsAtomic64() bool {
	return l.Width == 64
}

// Shifts returns the bit offsets of the timestamp and machine-id fields
// within the raw integer (the sequence starts at bit 0), along with the
// maximum machine-id and sequence values. The timestamp
// field occupies the shift range [MachineBits+SequenceBits, Width-ReservedBits).
func (l BitLayout) Shifts() (timestampShift, machineShift int, maxMachine, maxSequence uint64) {
	machineShift = l.SequenceBits
	timestampShift = l.SequenceBits + l.MachineBits
	maxMachine = (uint64(1) << l.MachineBits) - 1
	maxSequence = (uint64(1) << l.SequenceBits) - 1
	return
}

// ValidMask returns the mask of bits that may legally be non-zero in a raw
// integer produced by this layout: every bit except the reserved region.
func (l BitLayout) ValidMask() uint64 {
	if l.Width > 64 {
		return math.MaxUint64
	}
	usable := l.Width - l.ReservedBits
	if usable >= 64 {
		return math.MaxUint64
	}
	return (uint64(1) << usable) - 1
}

// MaxTimestamp returns the largest timestamp value (in TimeUnit units since
// Epoch) representable by this layout.
func (l BitLayout) MaxTimestamp() uint64 {
	if l.TimestampBits >= 64 {
		return math.MaxUint64
	}
	return (uint64(1) << l.TimestampBits) - 1
}

// Lifespan returns the wall-clock duration before the timestamp field
// wraps around, starting from Epoch.
func (l BitLayout) Lifespan() time.Duration {
	units := l.MaxTimestamp()
	total := new(bigDuration).mul(units, l.TimeUnit)
	return total.capped()
}

// bigDuration guards against overflow when multiplying a potentially huge
// unit count by a time.Duration (itself an int64 count of nanoseconds).
type bigDuration struct {
	overflowed bool
	value      time.Duration
}

func (b *bigDuration) mul(units uint64, unit time.Duration) *bigDuration {
	if units == 0 || unit == 0 {
		return b
	}
	const maxDuration = uint64(math.MaxInt64)
	u := uint64(unit)
	if units > maxDuration/u {
		b.overflowed = true
		return b
	}
	b.value = time.Duration(units * u)
	return b
}

func (b *bigDuration) capped() time.Duration {
	if b.overflowed {
		return time.Duration(math.MaxInt64)
	}
	return b.value
}

// EpochMillis returns the layout's custom epoch expressed as milliseconds
// since the Unix epoch, as used when composing/decomposing raw integers.
func (l BitLayout) EpochMillis() int64 {
	if !l.Epoch.IsZero() {
		return l.Epoch.UnixMilli()
	}
	return l.CustomEpochMs
}

// WithEpoch returns a copy of the layout pinned to the given epoch.
func (l BitLayout) WithEpoch(epoch time.Time) BitLayout {
	l.Epoch = epoch
	l.CustomEpochMs = epoch.UnixMilli()
	return l
}
