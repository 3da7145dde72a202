package fluxid

// Crockford Base32 alphabet, per the convention this package's codec is
// grounded on: excludes I, L, O, U to reduce visual ambiguity, and accepts
// the conventional aliases (O -> 0, I/L -> 1) when decoding.
const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const invalidDigit = 0xFF

var (
	encodeLUT [32]byte
	decodeLUT [256]byte
)

func init() {
	copy(encodeLUT[:], crockfordAlphabet)

	for i := range decodeLUT {
		decodeLUT[i] = invalidDigit
	}
	for i, c := range crockfordAlphabet {
		decodeLUT[c] = byte(i)
		if c >= 'A' && c <= 'Z' {
			decodeLUT[c+32] = byte(i) // lowercase
		}
	}
	decodeLUT['O'] = 0
	decodeLUT['o'] = 0
	decodeLUT['I'] = 1
	decodeLUT['i'] = 1
	decodeLUT['L'] = 1
	decodeLUT['l'] = 1
}

// EncodedLen returns the number of ASCII characters a Base32 encoding of a
// raw integer of bitWidth bits occupies: ceil(bitWidth / 5).
func EncodedLen(bitWidth int) int {
	return (bitWidth + 4) / 5
}

// EncodeBase32 writes the Crockford Base32 encoding of raw (a bitWidth-bit
// big-endian unsigned integer, bitWidth <= 64) into a freshly allocated
// string of EncodedLen(bitWidth) characters. The encoding is
// lexicographically order-preserving with respect to raw.
func EncodeBase32(raw uint64, bitWidth int) string {
	n := EncodedLen(bitWidth)
	buf := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		buf[i] = encodeLUT[raw&0x1F]
		raw >>= 5
	}
	return string(buf)
}

// DecodeBase32 decodes a Crockford Base32 string of exactly
// EncodedLen(bitWidth) characters back into a raw integer. Mixed case and
// the Crockford aliases (O, I, L) decode identically to their canonical
// digits. Returns *DecodeError on malformed input.
func DecodeBase32(s string, bitWidth int) (uint64, error) {
	want := EncodedLen(bitWidth)
	if len(s) != want {
		return 0, &DecodeError{Kind: DecodeInvalidLength}
	}

	var acc uint64
	for i := 0; i < len(s); i++ {
		v := decodeLUT[s[i]]
		if v == invalidDigit {
			return 0, &DecodeError{Kind: DecodeInvalidAscii, Byte: s[i], Index: i}
		}
		// The top char carries want*5 - bitWidth more bits than fit (since
		// EncodedLen rounds up); those must be zero, or the string is not a
		// faithful encoding of a bitWidth-bit integer. Checked before
		// accumulating so the excess can never be shifted out of acc.
		if i == 0 {
			if overflowBits := want*5 - bitWidth; overflowBits > 0 && v >= 1<<(5-overflowBits) {
				return 0, &DecodeError{Kind: DecodeOverflow, Byte: s[i], Index: i}
			}
		}
		acc = (acc << 5) | uint64(v)
	}
	return acc, nil
}

// EncodeBase32Pair encodes a 128-bit value held as two big-endian 64-bit
// words into its 26-character Crockford Base32 form.
func EncodeBase32Pair(hi, lo uint64) string {
	n := EncodedLen(128)
	buf := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		buf[i] = encodeLUT[lo&0x1F]
		lo = (lo >> 5) | (hi << 59)
		hi >>= 5
	}
	return string(buf)
}

// DecodeBase32Pair decodes a 26-character Crockford Base32 string into a
// 128-bit value held as two big-endian 64-bit words. The top character
// carries two excess bits (26*5 = 130), which must be zero.
func DecodeBase32Pair(s string) (hi, lo uint64, err error) {
	want := EncodedLen(128)
	if len(s) != want {
		return 0, 0, &DecodeError{Kind: DecodeInvalidLength}
	}
	for i := 0; i < len(s); i++ {
		v := decodeLUT[s[i]]
		if v == invalidDigit {
			return 0, 0, &DecodeError{Kind: DecodeInvalidAscii, Byte: s[i], Index: i}
		}
		if i == 0 && v >= 1<<3 {
			return 0, 0, &DecodeError{Kind: DecodeOverflow, Byte: s[i], Index: i}
		}
		hi = (hi << 5) | (lo >> 59)
		lo = (lo << 5) | uint64(v)
	}
	return hi, lo, nil
}

// EncodeLayoutID encodes id's raw integer under layout's Crockford Base32
// representation.
func EncodeLayoutID(layout BitLayout, raw uint64) string {
	return EncodeBase32(raw, layout.Width)
}

// DecodeLayoutID decodes s into a raw integer under layout, then validates
// that the decoded value's reserved bits are zero, returning a
// *DecodeError{Kind: DecodeOverflow} if not.
func DecodeLayoutID(layout BitLayout, s string) (uint64, error) {
	raw, err := DecodeBase32(s, layout.Width)
	if err != nil {
		return 0, err
	}
	if raw & ^layout.ValidMask() != 0 {
		return 0, &DecodeError{Kind: DecodeOverflow}
	}
	return raw, nil
}
