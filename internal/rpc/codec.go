// Package rpc wires the streaming service onto a real
// google.golang.org/grpc server: a hand-written binary codec for the two
// StreamIds messages (no protoc step), plus health and reflection.
//
// A hand-rolled codec instead of protoc-generated stubs is deliberate:
// the wire messages are two trivial
// structs (a uint64 and a length-prefixed byte blob) and pulling in the
// full protobuf toolchain for them would add a build-time code generation
// step this repository has no other use for. Unrelated real protobuf
// services (health, reflection) are registered on the same server and
// keep using grpc's built-in proto codec, since grpc picks the codec for
// each call from its content-subtype and this one is registered under its
// own name.
package rpc

import (
	"encoding/binary"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// StreamIdsRequest is the single streaming RPC's request message.
type StreamIdsRequest struct {
	Count uint64
}

// IdChunk is the single streaming RPC's response message: a little-endian
// concatenation of raw ids, or an error in place of a chunk.
type IdChunk struct {
	PackedIDs []byte
	ErrorText string
}

const codecName = "fluxid-binary"

// codec implements encoding.Codec for *StreamIdsRequest and *IdChunk. It is
// registered under a private name and selected explicitly per call option,
// leaving grpc's default "proto" codec untouched for the health and
// reflection services.
type codec struct{}

func init() {
	encoding.RegisterCodec(codec{})
}

func (codec) Name() string { return codecName }

func (codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case *StreamIdsRequest:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, m.Count)
		return buf, nil
	case *IdChunk:
		return marshalIdChunk(m), nil
	default:
		return nil, fmt.Errorf("rpc: codec cannot marshal %T", v)
	}
}

func (codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case *StreamIdsRequest:
		if len(data) != 8 {
			return fmt.Errorf("rpc: StreamIdsRequest expects 8 bytes, got %d", len(data))
		}
		m.Count = binary.LittleEndian.Uint64(data)
		return nil
	case *IdChunk:
		return unmarshalIdChunk(data, m)
	default:
		return fmt.Errorf("rpc: codec cannot unmarshal into %T", v)
	}
}

// marshalIdChunk frames IdChunk as: 1 byte isError flag, 4-byte LE length,
// then that many payload bytes (either the packed ids or the UTF-8 error
// text).
func marshalIdChunk(m *IdChunk) []byte {
	payload := m.PackedIDs
	isError := byte(0)
	if m.ErrorText != "" {
		payload = []byte(m.ErrorText)
		isError = 1
	}
	buf := make([]byte, 5+len(payload))
	buf[0] = isError
	binary.LittleEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	return buf
}

func unmarshalIdChunk(data []byte, m *IdChunk) error {
	if len(data) < 5 {
		return fmt.Errorf("rpc: IdChunk frame too short: %d bytes", len(data))
	}
	isError := data[0]
	n := binary.LittleEndian.Uint32(data[1:5])
	if uint32(len(data)-5) != n {
		return fmt.Errorf("rpc: IdChunk length mismatch: header says %d, got %d", n, len(data)-5)
	}
	if isError == 1 {
		m.ErrorText = string(data[5:])
		m.PackedIDs = nil
	} else {
		m.PackedIDs = append([]byte(nil), data[5:]...)
		m.ErrorText = ""
	}
	return nil
}
