package vaultcrypt

import (
	"bytes"
	"crypto/rand"
	"os"
	"strings"
	"testing"

	"github.com/absfs/absfs"
	"github.com/absfs/memfs"
)

func newTestVault(t *testing.T) (*Vault, absfs.FileSystem) {
	t.Helper()
	fs, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("Failed to create memfs: %v", err)
	}
	vault, err := CreateVault(fs, []byte("test passphrase"))
	if err != nil {
		t.Fatalf("CreateVault failed: %v", err)
	}
	return vault, fs
}

func TestVaultWriteReadFile(t *testing.T) {
	vault, _ := newTestVault(t)
	defer vault.Close()

	document := make([]byte, 50000)
	if _, err := rand.Read(document); err != nil {
		t.Fatalf("Failed to generate document: %v", err)
	}

	n, err := vault.WriteFile(RootDirectoryID, "report.pdf", bytes.NewReader(document))
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if n != int64(len(document)) {
		t.Errorf("WriteFile returned %d, want %d", n, len(document))
	}

	var restored bytes.Buffer
	if _, err := vault.ReadFile(RootDirectoryID, "report.pdf", &restored); err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(restored.Bytes(), document) {
		t.Error("Vault round trip mismatch")
	}

	var window bytes.Buffer
	if _, err := vault.ReadFileRange(RootDirectoryID, "report.pdf", &window, 1000, 500); err != nil {
		t.Fatalf("ReadFileRange failed: %v", err)
	}
	if !bytes.Equal(window.Bytes(), document[1000:1500]) {
		t.Error("Vault range read mismatch")
	}

	size, known, err := vault.FileSize(RootDirectoryID, "report.pdf")
	if err != nil {
		t.Fatalf("FileSize failed: %v", err)
	}
	if !known || size != int64(len(document)) {
		t.Errorf("FileSize = (%d, %t), want (%d, true)", size, known, len(document))
	}
}

func TestVaultLayoutOnDisk(t *testing.T) {
	vault, fs := newTestVault(t)
	defer vault.Close()

	if _, err := vault.WriteFile(RootDirectoryID, "visible-name.txt", strings.NewReader("contents")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	// The key file sits in the vault root.
	if _, err := fs.Stat("/" + KeyFileName); err != nil {
		t.Errorf("Key file missing: %v", err)
	}

	// Content lives under the sharded directory tree and the cleartext
	// name appears nowhere in the storage path.
	path, err := vault.contentPath(RootDirectoryID, "visible-name.txt")
	if err != nil {
		t.Fatalf("contentPath failed: %v", err)
	}
	if !strings.HasPrefix(path, "/d/") {
		t.Errorf("Storage path %q is not under /d/", path)
	}
	if strings.Contains(path, "visible-name") {
		t.Errorf("Cleartext name leaked into storage path %q", path)
	}
	if _, err := fs.Stat(path); err != nil {
		t.Errorf("Encrypted file missing at %q: %v", path, err)
	}
}

func TestVaultReopen(t *testing.T) {
	vault, fs := newTestVault(t)

	if _, err := vault.WriteFile(RootDirectoryID, "persist.bin", strings.NewReader("survives reopen")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	vault.Close()

	reopened, err := OpenVault(fs, []byte("test passphrase"))
	if err != nil {
		t.Fatalf("OpenVault failed: %v", err)
	}
	defer reopened.Close()

	var restored bytes.Buffer
	if _, err := reopened.ReadFile(RootDirectoryID, "persist.bin", &restored); err != nil {
		t.Fatalf("ReadFile after reopen failed: %v", err)
	}
	if restored.String() != "survives reopen" {
		t.Errorf("Got %q after reopen", restored.String())
	}
}

func TestVaultWrongPassword(t *testing.T) {
	vault, fs := newTestVault(t)
	vault.Close()

	_, err := OpenVault(fs, []byte("not the passphrase"))
	if !IsWrongPassword(err) {
		t.Errorf("Got %v, want wrong-password error", err)
	}
}

func TestVaultChangePassword(t *testing.T) {
	vault, fs := newTestVault(t)

	if _, err := vault.WriteFile(RootDirectoryID, "keeper.txt", strings.NewReader("still here")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if err := vault.ChangePassword([]byte("test passphrase"), []byte("better passphrase")); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	vault.Close()

	if _, err := OpenVault(fs, []byte("test passphrase")); !IsWrongPassword(err) {
		t.Errorf("Old passphrase still accepted: %v", err)
	}

	reopened, err := OpenVault(fs, []byte("better passphrase"))
	if err != nil {
		t.Fatalf("OpenVault with new passphrase failed: %v", err)
	}
	defer reopened.Close()

	var restored bytes.Buffer
	if _, err := reopened.ReadFile(RootDirectoryID, "keeper.txt", &restored); err != nil {
		t.Fatalf("ReadFile after password change failed: %v", err)
	}
	if restored.String() != "still here" {
		t.Errorf("Got %q after password change", restored.String())
	}
}

func TestVaultSubdirectories(t *testing.T) {
	vault, _ := newTestVault(t)
	defer vault.Close()

	dirID := NewDirectoryID()
	if _, err := vault.WriteFile(dirID, "nested.txt", strings.NewReader("in a subdirectory")); err != nil {
		t.Fatalf("WriteFile into subdirectory failed: %v", err)
	}

	var restored bytes.Buffer
	if _, err := vault.ReadFile(dirID, "nested.txt", &restored); err != nil {
		t.Fatalf("ReadFile from subdirectory failed: %v", err)
	}
	if restored.String() != "in a subdirectory" {
		t.Errorf("Got %q from subdirectory", restored.String())
	}

	// The same name in a different directory lands in a different bucket.
	otherID := NewDirectoryID()
	if _, err := vault.WriteFile(otherID, "nested.txt", strings.NewReader("other")); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	pathA, _ := vault.contentPath(dirID, "nested.txt")
	pathB, _ := vault.contentPath(otherID, "nested.txt")
	if pathA == pathB {
		t.Error("Distinct directories mapped to the same storage path")
	}
}

func TestVaultClosedRejectsOperations(t *testing.T) {
	vault, _ := newTestVault(t)
	vault.Close()

	if _, err := vault.WriteFile(RootDirectoryID, "x", strings.NewReader("y")); err == nil {
		t.Error("WriteFile on a closed vault succeeded")
	}
	var out bytes.Buffer
	if _, err := vault.ReadFile(RootDirectoryID, "x", &out); err == nil {
		t.Error("ReadFile on a closed vault succeeded")
	}
}

// Ensure memfs file handles satisfy what EncryptFile needs.
func TestMemfsFileSupportsSink(t *testing.T) {
	fs, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("Failed to create memfs: %v", err)
	}
	f, err := fs.OpenFile("/sink", os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()
	if err := f.Truncate(0); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	if _, err := f.Seek(HeaderLength, 0); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
}
