package vaultcrypt

import (
	"crypto/rand"
	"fmt"
	"io"
)

// masterKeys is the long-lived key pair of a vault: an AES key for content
// and header encryption and an HMAC-SHA256 key for authentication. The two
// keys are either both live or both destroyed.
type masterKeys struct {
	primary   []byte
	mac       []byte
	destroyed bool
}

// newRandomMasterKeys generates a fresh key pair from crypto/rand.
func newRandomMasterKeys() (*masterKeys, error) {
	k := &masterKeys{
		primary: make([]byte, MasterKeyLength),
		mac:     make([]byte, MasterKeyLength),
	}
	if _, err := io.ReadFull(rand.Reader, k.primary); err != nil {
		return nil, fmt.Errorf("failed to generate primary master key: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, k.mac); err != nil {
		return nil, fmt.Errorf("failed to generate mac master key: %w", err)
	}
	return k, nil
}

// newMasterKeys takes ownership of the given raw keys.
func newMasterKeys(primary, mac []byte) (*masterKeys, error) {
	if len(primary) != len(mac) {
		return nil, fmt.Errorf("master key length mismatch: %d vs %d bytes", len(primary), len(mac))
	}
	switch len(primary) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("invalid master key length: %d bytes", len(primary))
	}
	return &masterKeys{primary: primary, mac: mac}, nil
}

// destroy zeroizes both keys. Idempotent.
func (k *masterKeys) destroy() {
	if k.destroyed {
		return
	}
	zero(k.primary)
	zero(k.mac)
	k.destroyed = true
}

// sivKey returns the combined key for the filename codec: mac key first,
// then primary key, matching the key order the SIV construction expects.
// The caller must zeroize the returned slice.
func (k *masterKeys) sivKey() []byte {
	combined := make([]byte, 0, len(k.mac)+len(k.primary))
	combined = append(combined, k.mac...)
	combined = append(combined, k.primary...)
	return combined
}

// zero overwrites b with zeros.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// randomBytes returns n bytes from crypto/rand.
func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	return b, nil
}
