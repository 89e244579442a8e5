// Package security holds the sources of randomness used for opaque
// identifiers such as card tokens and 3-D Secure session ids.
package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// RandomSource returns n cryptographically strong random bytes.
// Implementations may be software (crypto/rand) or an HSM.
type RandomSource interface {
	Random(n int) ([]byte, error)
}

// CryptoRandom reads from crypto/rand.
type CryptoRandom struct{}

func (CryptoRandom) Random(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	return b, nil
}

// IDGenerator builds prefixed hex identifiers from a RandomSource.
type IDGenerator struct {
	src    RandomSource
	prefix string
	size   int
}

// NewIDGenerator returns a generator producing prefix + 2*size hex chars.
// A nil src falls back to crypto/rand.
func NewIDGenerator(src RandomSource, prefix string, size int) *IDGenerator {
	if src == nil {
		src = CryptoRandom{}
	}
	if size < 16 {
		size = 16
	}
	return &IDGenerator{src: src, prefix: prefix, size: size}
}

func (g *IDGenerator) NewID() (string, error) {
	b, err := g.src.Random(g.size)
	if err != nil {
		return "", err
	}
	if len(b) != g.size {
		return "", fmt.Errorf("random source returned %d bytes, want %d", len(b), g.size)
	}
	return g.prefix + hex.EncodeToString(b), nil
}

// Wipe zeroes b in place. Go does not guarantee no other copies exist.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
