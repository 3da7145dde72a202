package fluxid

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// SnowflakeID is a Snowflake-style identifier: a raw unsigned integer
// partitioned MSB to LSB into a reserved region, a timestamp, a machine-id,
// and a sequence, per Layout. Accessors are pure shift+mask; constructing
// one never allocates.
type SnowflakeID struct {
	Layout BitLayout
	raw    uint64
}

// NewSnowflakeID builds a SnowflakeID from its components. Each component
// must fit within the field width its Layout allots it; a value that
// doesn't is a programmer error, so this function panics rather than
// returning an error.
func NewSnowflakeID(layout BitLayout, timestamp, machineID, sequence uint64) SnowflakeID {
	tsShift, machineShift, maxMachine, maxSequence := layout.Shifts()
	maxTimestamp := layout.MaxTimestamp()

	if timestamp > maxTimestamp {
		panic(fmt.Sprintf("fluxid: timestamp %d exceeds %d-bit field (max %d)", timestamp, layout.TimestampBits, maxTimestamp))
	}
	if machineID > maxMachine {
		panic(fmt.Sprintf("fluxid: machine id %d exceeds %d-bit field (max %d)", machineID, layout.MachineBits, maxMachine))
	}
	if sequence > maxSequence {
		panic(fmt.Sprintf("fluxid: sequence %d exceeds %d-bit field (max %d)", sequence, layout.SequenceBits, maxSequence))
	}

	raw := (timestamp << uint(tsShift)) | (machineID << uint(machineShift)) | sequence
	return SnowflakeID{Layout: layout, raw: raw}
}

// SnowflakeIDFromRaw wraps an already bit-packed raw integer. This is
// infallible but does not imply validity: a raw value supplied by an
// untrusted source (e.g. decoded from Base32) may have non-zero reserved
// bits. Use IsValid or IntoValid to check/normalize.
func SnowflakeIDFromRaw(layout BitLayout, raw uint64) SnowflakeID {
	return SnowflakeID{Layout: layout, raw: raw}
}

// ToRaw returns the little-endian-serializable raw integer form.
func (id SnowflakeID) ToRaw() uint64 { return id.raw }

// Timestamp returns the timestamp field, in Layout.TimeUnit units since
// Layout.Epoch.
func (id SnowflakeID) Timestamp() uint64 {
	_, machineShift, _, _ := id.Layout.Shifts()
	tsShift := machineShift + id.Layout.MachineBits
	return (id.raw >> uint(tsShift)) & id.Layout.MaxTimestamp()
}

// MachineID returns the machine-id field.
func (id SnowflakeID) MachineID() uint64 {
	_, machineShift, maxMachine, _ := id.Layout.Shifts()
	return (id.raw >> uint(machineShift)) & maxMachine
}

// Sequence returns the sequence field.
func (id SnowflakeID) Sequence() uint64 {
	_, _, _, maxSequence := id.Layout.Shifts()
	return id.raw & maxSequence
}

// IsValid reports whether the reserved bits of the raw integer are zero.
func (id SnowflakeID) IsValid() bool {
	return id.raw & ^id.Layout.ValidMask() == 0
}

// IntoValid masks off any set reserved bits, returning a SnowflakeID that
// satisfies IsValid.
func (id SnowflakeID) IntoValid() SnowflakeID {
	return SnowflakeID{Layout: id.Layout, raw: id.raw & id.Layout.ValidMask()}
}

// HasSequenceRoom reports whether the sequence field can be incremented
// without wrapping, i.e. whether the generator may stay within the current
// timestamp.
func (id SnowflakeID) HasSequenceRoom() bool {
	_, _, _, maxSequence := id.Layout.Shifts()
	return id.Sequence() < maxSequence
}

// IncrementSequence returns the next ID at the same timestamp and
// machine-id with the sequence field advanced by one. Callers must check
// HasSequenceRoom first; this does not itself check for overflow.
func (id SnowflakeID) IncrementSequence() SnowflakeID {
	return SnowflakeID{Layout: id.Layout, raw: id.raw + 1}
}

// RolloverToTimestamp returns the ID for a new, strictly greater timestamp,
// with the sequence field reset to zero.
func (id SnowflakeID) RolloverToTimestamp(now uint64) SnowflakeID {
	return NewSnowflakeID(id.Layout, now, id.MachineID(), 0)
}

// String renders the ID in the layout's Crockford Base32 encoding.
func (id SnowflakeID) String() string {
	return EncodeLayoutID(id.Layout, id.raw)
}

// MarshalJSON encodes the ID as its Base32 string form, treating IDs as
// opaque tokens at API boundaries rather than raw numbers (which can
// silently lose precision in JSON consumers that parse numbers as
// float64).
func (id SnowflakeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// Value implements driver.Valuer, storing the ID as its raw uint64 form
// via int64 reinterpretation so it sorts identically to a BIGINT column.
func (id SnowflakeID) Value() (driver.Value, error) {
	return int64(id.raw), nil //nolint:gosec // intentional bit reinterpretation
}
