package fluxid

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

// RandSource yields uniformly distributed bits of the width ULID-style
// generators need for their random field. Implementations must be callable
// concurrently from any goroutine without external synchronization.
type RandSource interface {
	Uint64() uint64
}

// CryptoRandSource draws bits from crypto/rand. It is the safer default:
// slower than a PRNG, but suitable whenever ULID randomness must resist
// prediction (e.g. IDs that double as unguessable tokens).
type CryptoRandSource struct{}

// Uint64 returns a cryptographically random 64-bit value. A failure to
// read from the OS entropy source is treated as unrecoverable, matching
// the stdlib's own crypto/rand.Read contract.
func (CryptoRandSource) Uint64() uint64 {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		panic("fluxid: crypto/rand unavailable: " + err.Error())
	}
	return binary.BigEndian.Uint64(buf[:])
}

// MathRandSource wraps a ChaCha8 PRNG behind a mutex for high-throughput,
// non-adversarial use (e.g. benchmarked paths where resistance to
// prediction is not a requirement). math/rand/v2's ChaCha8 has no built-in
// thread safety, so calls are serialized here.
type MathRandSource struct {
	mu  sync.Mutex
	rng *rand.ChaCha8
}

// NewMathRandSource seeds a MathRandSource from a 32-byte seed. Callers
// that don't care about reproducibility can derive a seed from
// CryptoRandSource once at startup.
func NewMathRandSource(seed [32]byte) *MathRandSource {
	return &MathRandSource{rng: rand.NewChaCha8(seed)}
}

// Uint64 returns the next pseudo-random 64-bit value.
func (m *MathRandSource) Uint64() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Uint64()
}
