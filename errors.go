package vaultcrypt

import (
	"errors"
	"fmt"
)

// Error types represent the failure categories of vault operations

// WrongPasswordError indicates that unwrapping the master keys was rejected.
// This is the expected failure for a mistyped passphrase and is recoverable
// by retrying.
type WrongPasswordError struct {
	Err error // Underlying unwrap error
}

func (e *WrongPasswordError) Error() string {
	return "wrong password: master key unwrap rejected"
}

func (e *WrongPasswordError) Unwrap() error {
	return e.Err
}

// DecryptError indicates malformed ciphertext, an invalid SIV tag, or a
// range request beyond the declared file length. The operation is aborted.
type DecryptError struct {
	Reason string // Human-readable description
	Err    error  // Underlying error, if any
}

func (e *DecryptError) Error() string {
	return fmt.Sprintf("decryption failed: %s", e.Reason)
}

func (e *DecryptError) Unwrap() error {
	return e.Err
}

// MacAuthError indicates a header or content MAC mismatch. It is a subkind
// of decryption failure that signals possible tampering.
type MacAuthError struct {
	// Block is the content block index whose MAC failed, or -1 for the
	// file header
	Block int64
}

func (e *MacAuthError) Error() string {
	if e.Block < 0 {
		return "message authentication failed: file header"
	}
	return fmt.Sprintf("message authentication failed: content block %d", e.Block)
}

// UnsupportedVaultError indicates a key file version mismatch.
type UnsupportedVaultError struct {
	StoredVersion    uint32 // Version found in the key file
	SupportedVersion uint32 // Version this package supports
}

func (e *UnsupportedVaultError) Error() string {
	if e.StoredVersion < e.SupportedVersion {
		return fmt.Sprintf("unsupported vault: key file version %d predates supported version %d",
			e.StoredVersion, e.SupportedVersion)
	}
	return fmt.Sprintf("unsupported vault: key file version %d is newer than supported version %d",
		e.StoredVersion, e.SupportedVersion)
}

// UnsupportedKeyLengthError indicates the key file requests a master key
// length the local platform does not allow.
type UnsupportedKeyLengthError struct {
	Stored     int // Key length in bits stored in the key file
	MaxAllowed int // Maximum key length in bits allowed locally
}

func (e *UnsupportedKeyLengthError) Error() string {
	return fmt.Sprintf("unsupported key length: %d bits exceeds local maximum of %d bits",
		e.Stored, e.MaxAllowed)
}

// EncryptError indicates a failure while producing ciphertext. These are
// programmer errors (buffer sizing, cipher construction) surfaced instead
// of panicking in a worker.
type EncryptError struct {
	Message string
	Err     error
}

func (e *EncryptError) Error() string {
	return fmt.Sprintf("encryption failed: %s", e.Message)
}

func (e *EncryptError) Unwrap() error {
	return e.Err
}

// IOError represents a failure of an underlying byte channel.
type IOError struct {
	Operation string // "read", "write", "seek", "truncate", ...
	Offset    int64  // File offset, or -1 if not applicable
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("io error: %s at offset %d: %v", e.Operation, e.Offset, e.Err)
	}
	return fmt.Sprintf("io error: %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Common sentinel errors
var (
	// ErrDestroyed is returned by cryptographic operations on a destroyed
	// Cryptor
	ErrDestroyed = errors.New("cryptor has been destroyed")

	// ErrPipelineStalled is returned when a worker batch could not be
	// enqueued within the bounded interval, indicating the sink cannot
	// keep up
	ErrPipelineStalled = errors.New("worker pipeline stalled: enqueue timed out")

	// ErrHeaderTooShort is returned when the input ends before a complete
	// file header
	ErrHeaderTooShort = errors.New("input shorter than file header")
)

// Helper constructors

// NewIOError creates a new I/O error without offset information
func NewIOError(operation string, err error) error {
	return &IOError{Operation: operation, Offset: -1, Err: err}
}

// NewIOErrorAt creates a new I/O error at a known offset
func NewIOErrorAt(operation string, offset int64, err error) error {
	return &IOError{Operation: operation, Offset: offset, Err: err}
}

// Error checking helpers

// IsWrongPassword checks if an error is a wrong-password failure
func IsWrongPassword(err error) bool {
	var we *WrongPasswordError
	return errors.As(err, &we)
}

// IsMacAuthError checks if an error is a MAC authentication failure
func IsMacAuthError(err error) bool {
	var me *MacAuthError
	return errors.As(err, &me)
}

// IsDecryptError checks if an error is a decryption failure. MAC
// authentication failures are a subkind and also match.
func IsDecryptError(err error) bool {
	var de *DecryptError
	return errors.As(err, &de) || IsMacAuthError(err)
}

// IsUnsupportedVault checks if an error is a key file version mismatch
func IsUnsupportedVault(err error) bool {
	var ue *UnsupportedVaultError
	return errors.As(err, &ue)
}

// IsUnsupportedKeyLength checks if an error is a key length rejection
func IsUnsupportedKeyLength(err error) bool {
	var ke *UnsupportedKeyLengthError
	return errors.As(err, &ke)
}

// IsEncryptError checks if an error is an encryption failure
func IsEncryptError(err error) bool {
	var ee *EncryptError
	return errors.As(err, &ee)
}

// IsIOError checks if an error is an I/O error
func IsIOError(err error) bool {
	var ie *IOError
	return errors.As(err, &ie)
}
