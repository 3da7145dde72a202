package fluxid

import (
	"testing"
	"time"
)

func TestBitLayoutValidate(t *testing.T) {
	cases := []struct {
		name    string
		layout  BitLayout
		wantErr bool
	}{
		{"default", LayoutDefault, false},
		{"wide", LayoutWide, false},
		{"longlife", LayoutLongLife, false},
		{"coarse", LayoutCoarse, false},
		{"bad width", BitLayout{Width: 63, TimestampBits: 41, MachineBits: 10, SequenceBits: 12, TimeUnit: time.Millisecond}, true},
		{"fields don't sum", BitLayout{Width: 64, TimestampBits: 40, MachineBits: 10, SequenceBits: 12, TimeUnit: time.Millisecond}, true},
		{"negative field", BitLayout{Width: 64, TimestampBits: 41, MachineBits: -1, SequenceBits: 24, TimeUnit: time.Millisecond}, true},
		{"zero timestamp", BitLayout{Width: 64, TimestampBits: 0, MachineBits: 32, SequenceBits: 32, TimeUnit: time.Millisecond}, true},
		{"zero time unit", BitLayout{Width: 64, ReservedBits: 1, TimestampBits: 41, MachineBits: 10, SequenceBits: 12}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.layout.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestBitLayoutShiftsAndMasks(t *testing.T) {
	l := LayoutDefault
	tsShift, machineShift, maxMachine, maxSequence := l.Shifts()
	if machineShift != 12 {
		t.Fatalf("machineShift = %d, want 12", machineShift)
	}
	if tsShift != 22 {
		t.Fatalf("timestampShift = %d, want 22", tsShift)
	}
	if maxMachine != 1023 {
		t.Fatalf("maxMachine = %d, want 1023", maxMachine)
	}
	if maxSequence != 4095 {
		t.Fatalf("maxSequence = %d, want 4095", maxSequence)
	}
}

func TestBitLayoutValidMask(t *testing.T) {
	l := LayoutDefault // 1 reserved bit
	mask := l.ValidMask()
	if mask != (uint64(1)<<63)-1 {
		t.Fatalf("ValidMask() = %#x, want %#x", mask, (uint64(1)<<63)-1)
	}

	noReserved := LayoutLongLife
	if noReserved.ValidMask() != ^uint64(0) {
		t.Fatalf("ValidMask() with 0 reserved bits should be all-ones")
	}
}

func TestBitLayoutSupportsAtomic64(t *testing.T) {
	if !LayoutDefault.SupportsAtomic64() {
		t.Fatalf("64-bit layout should support atomic variant")
	}
	wide128 := BitLayout{Width: 128, TimestampBits: 48, MachineBits: 20, SequenceBits: 60, TimeUnit: time.Millisecond}
	if wide128.SupportsAtomic64() {
		t.Fatalf("128-bit layout must not claim atomic support")
	}
}

func TestBitLayoutLifespanDoesNotOverflow(t *testing.T) {
	l := BitLayout{Width: 64, TimestampBits: 63, MachineBits: 1, SequenceBits: 0, TimeUnit: time.Hour}
	got := l.Lifespan()
	if got <= 0 {
		t.Fatalf("Lifespan() = %v, want positive duration even under overflow", got)
	}
}

func TestBitLayoutWithEpoch(t *testing.T) {
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := LayoutDefault.WithEpoch(epoch)
	if l.EpochMillis() != epoch.UnixMilli() {
		t.Fatalf("EpochMillis() = %d, want %d", l.EpochMillis(), epoch.UnixMilli())
	}
}
