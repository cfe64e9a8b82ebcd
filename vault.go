package vaultcrypt

import (
	"bytes"
	"io"
	"os"

	"github.com/absfs/absfs"
)

const (
	// KeyFileName is the name of the key file in the vault root
	KeyFileName = "vault.vcmk"

	// contentRoot is the directory under which all encrypted content lives
	contentRoot = "d"
)

// Vault is a directory tree of encrypted files and encrypted names on an
// arbitrary filesystem, plus one key file. It composes the Cryptor's
// filename and content codecs into per-path operations.
type Vault struct {
	fs      absfs.FileSystem
	cryptor *Cryptor
	sep     string
}

// CreateVault initializes a new vault in the root of fs: fresh random
// master keys, wrapped under the passphrase into the key file. The
// passphrase is wiped before return.
func CreateVault(fs absfs.FileSystem, passphrase []byte) (*Vault, error) {
	sep := string([]byte{fs.Separator()})

	cryptor, err := New()
	if err != nil {
		zero(passphrase)
		return nil, err
	}

	f, err := fs.OpenFile(sep+KeyFileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		zero(passphrase)
		cryptor.Destroy()
		return nil, NewIOError("create key file", err)
	}
	if err := cryptor.EncryptMasterKey(f, passphrase); err != nil {
		f.Close()
		cryptor.Destroy()
		return nil, err
	}
	if err := f.Close(); err != nil {
		cryptor.Destroy()
		return nil, NewIOError("close key file", err)
	}

	v := &Vault{fs: fs, cryptor: cryptor, sep: sep}
	if err := v.ensureDirectory(RootDirectoryID); err != nil {
		cryptor.Destroy()
		return nil, err
	}
	return v, nil
}

// OpenVault unlocks an existing vault with the passphrase. The passphrase
// is wiped before return.
func OpenVault(fs absfs.FileSystem, passphrase []byte) (*Vault, error) {
	sep := string([]byte{fs.Separator()})

	cryptor, err := New()
	if err != nil {
		zero(passphrase)
		return nil, err
	}

	f, err := fs.Open(sep + KeyFileName)
	if err != nil {
		zero(passphrase)
		cryptor.Destroy()
		return nil, NewIOError("open key file", err)
	}
	defer f.Close()

	if err := cryptor.DecryptMasterKey(f, passphrase); err != nil {
		cryptor.Destroy()
		return nil, err
	}
	return &Vault{fs: fs, cryptor: cryptor, sep: sep}, nil
}

// Cryptor exposes the underlying cryptographic engine.
func (v *Vault) Cryptor() *Cryptor {
	return v.cryptor
}

// contentDir maps a directory identifier to its sharded on-disk directory.
func (v *Vault) contentDir(directoryID string) (string, error) {
	sharded, err := v.cryptor.EncryptDirectoryPath(directoryID, v.sep)
	if err != nil {
		return "", err
	}
	return v.sep + contentRoot + v.sep + sharded, nil
}

// contentPath maps (directory, cleartext name) to the encrypted file path.
func (v *Vault) contentPath(directoryID, name string) (string, error) {
	dir, err := v.contentDir(directoryID)
	if err != nil {
		return "", err
	}
	encrypted, err := v.cryptor.EncryptFilename(name)
	if err != nil {
		return "", err
	}
	return dir + v.sep + encrypted, nil
}

// ensureDirectory creates the on-disk shard directory for a directory id.
func (v *Vault) ensureDirectory(directoryID string) error {
	dir, err := v.contentDir(directoryID)
	if err != nil {
		return err
	}
	if err := v.fs.MkdirAll(dir, 0700); err != nil {
		return NewIOError("mkdir", err)
	}
	return nil
}

// WriteFile encrypts everything read from r into the vault entry
// (directoryID, name). Returns the plaintext length.
func (v *Vault) WriteFile(directoryID, name string, r io.Reader) (int64, error) {
	if err := v.ensureDirectory(directoryID); err != nil {
		return 0, err
	}
	path, err := v.contentPath(directoryID, name)
	if err != nil {
		return 0, err
	}

	f, err := v.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return 0, NewIOError("create", err)
	}
	n, err := v.cryptor.EncryptFile(r, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = NewIOError("close", cerr)
	}
	return n, err
}

// ReadFile decrypts the vault entry (directoryID, name) into w with full
// authentication. Returns the number of plaintext bytes delivered.
func (v *Vault) ReadFile(directoryID, name string, w io.Writer) (int64, error) {
	path, err := v.contentPath(directoryID, name)
	if err != nil {
		return 0, err
	}
	f, err := v.fs.Open(path)
	if err != nil {
		return 0, NewIOError("open", err)
	}
	defer f.Close()
	return v.cryptor.DecryptFile(f, w, true)
}

// ReadFileRange decrypts length bytes starting at pos from the vault entry.
func (v *Vault) ReadFileRange(directoryID, name string, w io.Writer, pos, length int64) (int64, error) {
	path, err := v.contentPath(directoryID, name)
	if err != nil {
		return 0, err
	}
	f, err := v.fs.Open(path)
	if err != nil {
		return 0, NewIOError("open", err)
	}
	defer f.Close()
	return v.cryptor.DecryptRange(f, w, pos, length, true)
}

// FileSize reports the declared plaintext length of a vault entry. The
// boolean is false when the stored file is too short to carry a header.
func (v *Vault) FileSize(directoryID, name string) (int64, bool, error) {
	path, err := v.contentPath(directoryID, name)
	if err != nil {
		return 0, false, err
	}
	f, err := v.fs.Open(path)
	if err != nil {
		return 0, false, NewIOError("open", err)
	}
	defer f.Close()
	return v.cryptor.DecryptedContentLength(f)
}

// ChangePassword re-wraps the vault's master keys under a new passphrase.
// File contents are untouched. Both passphrases are wiped before return.
func (v *Vault) ChangePassword(oldPassphrase, newPassphrase []byte) error {
	f, err := v.fs.Open(v.sep + KeyFileName)
	if err != nil {
		zero(oldPassphrase)
		zero(newPassphrase)
		return NewIOError("open key file", err)
	}
	var rewrapped bytes.Buffer
	err = ChangePassword(f, &rewrapped, oldPassphrase, newPassphrase, v.cryptor.params.Scrypt)
	f.Close()
	if err != nil {
		return err
	}

	out, err := v.fs.OpenFile(v.sep+KeyFileName, os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return NewIOError("rewrite key file", err)
	}
	if _, err := out.Write(rewrapped.Bytes()); err != nil {
		out.Close()
		return NewIOError("rewrite key file", err)
	}
	if err := out.Close(); err != nil {
		return NewIOError("close key file", err)
	}
	return nil
}

// Close destroys the vault's key material. The vault rejects all further
// operations.
func (v *Vault) Close() error {
	v.cryptor.Destroy()
	return nil
}
