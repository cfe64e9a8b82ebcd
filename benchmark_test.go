package vaultcrypt

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/absfs/memfs"
)

func benchmarkCryptor(b *testing.B) *Cryptor {
	b.Helper()
	params := DefaultParams()
	params.Scrypt.CostParam = 1 << 4
	c, err := NewWithParams(params)
	if err != nil {
		b.Fatalf("Failed to create cryptor: %v", err)
	}
	return c
}

func BenchmarkEncryptFile(b *testing.B) {
	c := benchmarkCryptor(b)
	defer c.Destroy()

	for _, size := range []int{64 * 1024, 1024 * 1024, 16 * 1024 * 1024} {
		plaintext := make([]byte, size)
		rand.Read(plaintext)

		b.Run(fmt.Sprintf("%dKiB", size/1024), func(b *testing.B) {
			fs, err := memfs.NewFS()
			if err != nil {
				b.Fatalf("Failed to create memfs: %v", err)
			}
			b.SetBytes(int64(size))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				f, err := fs.OpenFile("/bench", os.O_RDWR|os.O_CREATE, 0600)
				if err != nil {
					b.Fatalf("OpenFile failed: %v", err)
				}
				if _, err := c.EncryptFile(bytes.NewReader(plaintext), f); err != nil {
					b.Fatalf("EncryptFile failed: %v", err)
				}
				f.Close()
			}
		})
	}
}

func BenchmarkDecryptFile(b *testing.B) {
	c := benchmarkCryptor(b)
	defer c.Destroy()

	for _, size := range []int{64 * 1024, 1024 * 1024, 16 * 1024 * 1024} {
		plaintext := make([]byte, size)
		rand.Read(plaintext)

		fs, err := memfs.NewFS()
		if err != nil {
			b.Fatalf("Failed to create memfs: %v", err)
		}
		f, err := fs.OpenFile("/bench", os.O_RDWR|os.O_CREATE, 0600)
		if err != nil {
			b.Fatalf("OpenFile failed: %v", err)
		}
		if _, err := c.EncryptFile(bytes.NewReader(plaintext), f); err != nil {
			b.Fatalf("EncryptFile failed: %v", err)
		}
		f.Close()

		f2, err := fs.Open("/bench")
		if err != nil {
			b.Fatalf("Open failed: %v", err)
		}
		ciphertext, err := io.ReadAll(f2)
		f2.Close()
		if err != nil {
			b.Fatalf("ReadAll failed: %v", err)
		}

		b.Run(fmt.Sprintf("%dKiB", size/1024), func(b *testing.B) {
			b.SetBytes(int64(size))
			for i := 0; i < b.N; i++ {
				if _, err := c.DecryptFile(bytes.NewReader(ciphertext), io.Discard, true); err != nil {
					b.Fatalf("DecryptFile failed: %v", err)
				}
			}
		})
	}
}

func BenchmarkDecryptRange(b *testing.B) {
	c := benchmarkCryptor(b)
	defer c.Destroy()

	size := 16 * 1024 * 1024
	plaintext := make([]byte, size)
	rand.Read(plaintext)

	fs, err := memfs.NewFS()
	if err != nil {
		b.Fatalf("Failed to create memfs: %v", err)
	}
	f, err := fs.OpenFile("/bench", os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		b.Fatalf("OpenFile failed: %v", err)
	}
	if _, err := c.EncryptFile(bytes.NewReader(plaintext), f); err != nil {
		b.Fatalf("EncryptFile failed: %v", err)
	}
	f.Close()

	f2, err := fs.Open("/bench")
	if err != nil {
		b.Fatalf("Open failed: %v", err)
	}
	ciphertext, err := io.ReadAll(f2)
	f2.Close()
	if err != nil {
		b.Fatalf("ReadAll failed: %v", err)
	}

	b.SetBytes(64 * 1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pos := int64((i * 4096) % (size - 64*1024))
		if _, err := c.DecryptRange(bytes.NewReader(ciphertext), io.Discard, pos, 64*1024, true); err != nil {
			b.Fatalf("DecryptRange failed: %v", err)
		}
	}
}

func BenchmarkEncryptFilename(b *testing.B) {
	c := benchmarkCryptor(b)
	defer c.Destroy()

	for i := 0; i < b.N; i++ {
		if _, err := c.EncryptFilename("quarterly-report-2026-q3-final-v2.xlsx"); err != nil {
			b.Fatalf("EncryptFilename failed: %v", err)
		}
	}
}
