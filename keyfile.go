package vaultcrypt

import (
	"crypto/aes"
	"encoding/json"
	"fmt"
	"io"

	keywrap "github.com/NickBall/go-aes-key-wrap"
	"golang.org/x/crypto/scrypt"
)

// KeyFile is the persisted record of the wrapped master keys. Byte fields
// are base64-encoded in the JSON serialization. The key file survives
// password changes: only the KEK wrapping changes, never the master keys.
type KeyFile struct {
	Version          uint32 `json:"version"`
	ScryptSalt       []byte `json:"scryptSalt"`
	ScryptCostParam  int    `json:"scryptCostParam"`
	ScryptBlockSize  int    `json:"scryptBlockSize"`
	KeyLength        int    `json:"keyLength"`
	PrimaryMasterKey []byte `json:"primaryMasterKey"`
	HMacMasterKey    []byte `json:"hMacMasterKey"`
}

// readKeyFile parses a key file from r. Unknown JSON fields are ignored.
func readKeyFile(r io.Reader) (*KeyFile, error) {
	kf := &KeyFile{}
	if err := json.NewDecoder(r).Decode(kf); err != nil {
		return nil, NewIOError("read key file", err)
	}
	return kf, nil
}

// writeKeyFile serializes a key file to w.
func writeKeyFile(w io.Writer, kf *KeyFile) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(kf); err != nil {
		return NewIOError("write key file", err)
	}
	return nil
}

// deriveKEK derives the key-encryption key from the passphrase with scrypt.
// The caller must zeroize the returned key.
func deriveKEK(passphrase, salt []byte, costParam, blockSize, keyLengthBits int) ([]byte, error) {
	kek, err := scrypt.Key(passphrase, salt, costParam, blockSize, scryptParallelization, keyLengthBits/8)
	if err != nil {
		return nil, &DecryptError{Reason: "scrypt parameters rejected", Err: err}
	}
	return kek, nil
}

// wrapMasterKeys derives a fresh KEK from the passphrase and wraps both
// master keys under it. The passphrase is not consumed; the facade wipes it.
func wrapMasterKeys(keys *masterKeys, passphrase []byte, params ScryptParams) (*KeyFile, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scrypt parameters: %w", err)
	}

	salt, err := randomBytes(params.SaltLength)
	if err != nil {
		return nil, err
	}

	kek, err := deriveKEK(passphrase, salt, params.CostParam, params.BlockSize, params.KeyLength)
	if err != nil {
		return nil, err
	}
	defer zero(kek)

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, &EncryptError{Message: "failed to initialize KEK cipher", Err: err}
	}

	wrappedPrimary, err := keywrap.Wrap(block, keys.primary)
	if err != nil {
		return nil, &EncryptError{Message: "failed to wrap primary master key", Err: err}
	}
	wrappedMac, err := keywrap.Wrap(block, keys.mac)
	if err != nil {
		return nil, &EncryptError{Message: "failed to wrap mac master key", Err: err}
	}

	return &KeyFile{
		Version:          CurrentKeyFileVersion,
		ScryptSalt:       salt,
		ScryptCostParam:  params.CostParam,
		ScryptBlockSize:  params.BlockSize,
		KeyLength:        params.KeyLength,
		PrimaryMasterKey: wrappedPrimary,
		HMacMasterKey:    wrappedMac,
	}, nil
}

// unwrapMasterKeys validates the key file, re-derives the KEK with the
// stored parameters and unwraps both master keys. An unwrap integrity
// failure is classified as a wrong password; everything else keeps its own
// category.
func unwrapMasterKeys(kf *KeyFile, passphrase []byte) (*masterKeys, error) {
	if kf.Version != CurrentKeyFileVersion {
		return nil, &UnsupportedVaultError{
			StoredVersion:    kf.Version,
			SupportedVersion: CurrentKeyFileVersion,
		}
	}
	if kf.KeyLength > MaxKeyLengthBits {
		return nil, &UnsupportedKeyLengthError{Stored: kf.KeyLength, MaxAllowed: MaxKeyLengthBits}
	}
	switch kf.KeyLength {
	case 128, 192, 256:
	default:
		return nil, &DecryptError{Reason: fmt.Sprintf("invalid key length in key file: %d bits", kf.KeyLength)}
	}

	kek, err := deriveKEK(passphrase, kf.ScryptSalt, kf.ScryptCostParam, kf.ScryptBlockSize, kf.KeyLength)
	if err != nil {
		return nil, err
	}
	defer zero(kek)

	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, &DecryptError{Reason: "failed to initialize KEK cipher", Err: err}
	}

	// RFC 3394 unwrap verifies the integrity check value; a mismatch means
	// the KEK is wrong, which is how a bad passphrase manifests.
	primary, err := keywrap.Unwrap(block, kf.PrimaryMasterKey)
	if err != nil {
		return nil, &WrongPasswordError{Err: err}
	}
	mac, err := keywrap.Unwrap(block, kf.HMacMasterKey)
	if err != nil {
		zero(primary)
		return nil, &WrongPasswordError{Err: err}
	}

	keys, err := newMasterKeys(primary, mac)
	if err != nil {
		zero(primary)
		zero(mac)
		return nil, &DecryptError{Reason: "unwrapped master keys malformed", Err: err}
	}
	return keys, nil
}

// ChangePassword reads a key file from in, unwraps the master keys with
// oldPassphrase and writes a new key file to out with the keys re-wrapped
// under newPassphrase. The file content keys are untouched, so no file
// needs re-encryption. Both passphrases are wiped before return.
func ChangePassword(in io.Reader, out io.Writer, oldPassphrase, newPassphrase []byte, params ScryptParams) error {
	defer zero(oldPassphrase)
	defer zero(newPassphrase)

	kf, err := readKeyFile(in)
	if err != nil {
		return err
	}

	keys, err := unwrapMasterKeys(kf, oldPassphrase)
	if err != nil {
		return err
	}
	defer keys.destroy()

	rewrapped, err := wrapMasterKeys(keys, newPassphrase, params)
	if err != nil {
		return err
	}
	return writeKeyFile(out, rewrapped)
}
