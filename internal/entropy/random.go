// Package entropy hands out the random sources a run draws from. Every
// source is an explicit handle seeded from a 64-bit value; nothing here
// touches the global math/rand state.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	mrand "math/rand"
	"strconv"
	"strings"
)

// DefaultSeed is the seed runs use unless told otherwise.
const DefaultSeed uint64 = 0xD67CC16FE69C2868

// NewRand returns a source seeded with seed and the seed actually used. A
// zero seed is replaced by one drawn from crypto/rand, so the caller can log
// it and reproduce the run later.
func NewRand(seed uint64) (*mrand.Rand, uint64) {
	if seed == 0 {
		seed = CryptoSeed()
		slog.Info("drew random seed", "seed", FormatSeed(seed))
	}
	return mrand.New(mrand.NewSource(int64(seed))), seed
}

// CryptoSeed draws a non-zero 64-bit seed from crypto/rand.
func CryptoSeed() uint64 {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			// crypto/rand does not fail on supported platforms.
			return DefaultSeed
		}
		if s := binary.LittleEndian.Uint64(buf[:]); s != 0 {
			return s
		}
	}
}

// ParseSeed accepts a decimal or 0x-prefixed hexadecimal seed.
func ParseSeed(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid seed %q: %w", s, err)
	}
	return v, nil
}

// FormatSeed renders a seed the way ParseSeed reads it back.
func FormatSeed(seed uint64) string {
	return fmt.Sprintf("%#016x", seed)
}
