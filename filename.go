package vaultcrypt

import (
	"crypto/sha256"
	"encoding/base32"

	"github.com/google/uuid"
)

// Filenames are encrypted with AES-SIV, which is deterministic: the same
// name under the same master keys always yields the same ciphertext, so a
// vault can address files without a name database.
//
// The canonical on-disk codec is unpadded base32 (A-Z, 2-7). It is URL- and
// filesystem-safe on every platform, case-preserving and losslessly
// reversible.
var filenameEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// RootDirectoryID is the directory identifier of the vault root.
const RootDirectoryID = ""

// NewDirectoryID returns a fresh unique identifier for a new directory.
func NewDirectoryID() string {
	return uuid.NewString()
}

// EncryptFilename encrypts a UTF-8 filename deterministically.
func (c *Cryptor) EncryptFilename(name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return "", ErrDestroyed
	}

	ciphertext, err := c.siv.Seal(nil, []byte(name))
	if err != nil {
		return "", &EncryptError{Message: "failed to encrypt filename", Err: err}
	}
	return filenameEncoding.EncodeToString(ciphertext), nil
}

// DecryptFilename reverses EncryptFilename. A malformed encoding or an
// invalid SIV tag yields a decryption failure.
func (c *Cryptor) DecryptFilename(ciphertext string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return "", ErrDestroyed
	}

	raw, err := filenameEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", &DecryptError{Reason: "malformed filename encoding", Err: err}
	}
	plaintext, err := c.siv.Open(nil, raw)
	if err != nil {
		return "", &DecryptError{Reason: "filename authentication failed", Err: err}
	}
	return string(plaintext), nil
}

// EncryptDirectoryPath maps a directory identifier to its on-disk location.
// The identifier is SIV-encrypted, hashed with SHA-256 and canonically
// encoded; pathSep is inserted after the first two characters. The two-char
// prefix shards directories across at most 1024 buckets, bounding the
// fan-out of any single parent directory.
func (c *Cryptor) EncryptDirectoryPath(directoryID, pathSep string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return "", ErrDestroyed
	}

	ciphertext, err := c.siv.Seal(nil, []byte(directoryID))
	if err != nil {
		return "", &EncryptError{Message: "failed to encrypt directory id", Err: err}
	}
	digest := sha256.Sum256(ciphertext)
	encoded := filenameEncoding.EncodeToString(digest[:])
	return encoded[:2] + pathSep + encoded[2:], nil
}
