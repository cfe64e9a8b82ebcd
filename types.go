package vaultcrypt

import (
	"errors"
	"fmt"
	"runtime"
)

// Normative constants of the on-disk format. Changing any of these breaks
// compatibility with existing vaults.
const (
	// AESBlockLength is the AES block size in bytes
	AESBlockLength = 16

	// ContentMACBlock is the plaintext size of one content block (32 KiB)
	ContentMACBlock = 32 * 1024

	// MACLength is the size of an HMAC-SHA256 tag in bytes
	MACLength = 32

	// HeaderLength is the fixed size of the file header:
	// 16-byte IV + 8-byte nonce + 48-byte sensitive block + 32-byte MAC
	HeaderLength = 104

	// FileKeyLength is the size of the per-file content key in bytes
	FileKeyLength = 32

	// MasterKeyLength is the size of each master key in bytes (256 bits)
	MasterKeyLength = 32

	// NonceLength is the size of the per-file content nonce in bytes
	NonceLength = 8

	// CurrentKeyFileVersion is the key file format version written and
	// accepted by this package
	CurrentKeyFileVersion = 3

	// MaxKeyLengthBits is the largest master key length this platform
	// accepts from a key file
	MaxKeyLengthBits = 256
)

// Internal header geometry.
const (
	headerIVLength        = 16
	headerSensitiveLength = 48
	headerPayloadLength   = 40 // 8-byte length + 32-byte file key, before padding
	headerMACOffset       = HeaderLength - MACLength
)

// contentBlockStride is the on-disk size of one full content block.
const contentBlockStride = ContentMACBlock + MACLength

// ObfuscationThreshold is the minimum plaintext length fed into the content
// codec. Shorter inputs are padded with random bytes up to this size; the
// true length is recorded inside the encrypted header.
const ObfuscationThreshold = 1024

// Default scrypt parameters for new key files.
const (
	DefaultScryptCostParam  = 1 << 15
	DefaultScryptBlockSize  = 8
	DefaultScryptSaltLength = 8

	// scryptParallelization is fixed by the key file format
	scryptParallelization = 1
)

// Batch sizing for the worker executor. The producer starts with single-block
// batches and doubles up to maxBatchBlocks to amortize queue contention.
const (
	maxBatchBlocks = 64
	queueCapacity  = 8
)

// ScryptParams contains the cost parameters used to derive the KEK from a
// passphrase. The parallelization parameter is fixed to 1 by the format.
type ScryptParams struct {
	CostParam  int // N, must be a power of two > 1
	BlockSize  int // r
	SaltLength int // salt size in bytes
	KeyLength  int // derived KEK length in bits: 128, 192 or 256
}

// DefaultScryptParams returns the parameters used for new key files.
func DefaultScryptParams() ScryptParams {
	return ScryptParams{
		CostParam:  DefaultScryptCostParam,
		BlockSize:  DefaultScryptBlockSize,
		SaltLength: DefaultScryptSaltLength,
		KeyLength:  MaxKeyLengthBits,
	}
}

// Validate checks if the scrypt parameters are valid
func (p *ScryptParams) Validate() error {
	if p.CostParam < 2 || p.CostParam&(p.CostParam-1) != 0 {
		return errors.New("scrypt cost parameter must be a power of two > 1")
	}
	if p.BlockSize < 1 {
		return errors.New("scrypt block size must be at least 1")
	}
	if p.SaltLength < 8 {
		return errors.New("scrypt salt must be at least 8 bytes")
	}
	switch p.KeyLength {
	case 128, 192, 256:
	default:
		return fmt.Errorf("unsupported key length: %d bits", p.KeyLength)
	}
	return nil
}

// Params contains configuration for a Cryptor instance.
type Params struct {
	// Scrypt cost parameters for EncryptMasterKey
	Scrypt ScryptParams

	// Workers is the number of content-codec workers per call.
	// If 0, defaults to runtime.NumCPU().
	Workers int
}

// DefaultParams returns the default Cryptor configuration.
func DefaultParams() Params {
	return Params{
		Scrypt:  DefaultScryptParams(),
		Workers: runtime.NumCPU(),
	}
}

// Validate checks if the configuration is valid
func (p *Params) Validate() error {
	if err := p.Scrypt.Validate(); err != nil {
		return err
	}
	if p.Workers < 0 {
		return errors.New("worker count cannot be negative")
	}
	if p.Workers > 1024 {
		return errors.New("worker count must not exceed 1024")
	}
	return nil
}
