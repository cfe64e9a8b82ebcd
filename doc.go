// Package vaultcrypt is the cryptographic engine for a client-side
// encrypted virtual drive: authenticated, streaming, per-file encryption
// with deterministic filename encryption and password-protected master
// keys.
//
// # Key hierarchy
//
// A vault has two long-lived 256-bit master keys: an AES key for content
// and header encryption, and an HMAC-SHA256 key for authentication. Both
// are wrapped (RFC 3394 AES Key Wrap) under a key-encryption key derived
// from the user's passphrase with scrypt, and persisted in a JSON key
// file. Changing the password only re-wraps the master keys; no file is
// re-encrypted.
//
// # File format
//
// Each encrypted file starts with a 104-byte header: a random IV, an
// 8-byte content nonce, an AES-CBC-encrypted sensitive block carrying the
// true plaintext length and a random per-file content key, and an
// HMAC-SHA256 over the preceding 72 bytes. The content follows as 32 KiB
// blocks encrypted with AES-CTR under the per-file key, each followed by a
// 32-byte HMAC that binds the header IV and the block index, preventing
// truncation, reordering and cross-file block swapping.
//
// # Filenames
//
// Names are encrypted with AES-SIV, which is deterministic for equal
// inputs, then encoded with unpadded base32. Directory identifiers map to
// a SHA-256-derived, two-character-sharded storage path.
//
// # Concurrency
//
// Whole-file encryption and decryption run on a fixed pool of workers that
// process consecutive blocks from a bounded queue and commit output in
// strict block order. Range decryption is single-threaded and seeks
// directly to the first covering block.
//
// # Basic usage
//
//	cryptor, err := vaultcrypt.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer cryptor.Destroy()
//
//	// Persist the master keys, protected by a passphrase.
//	var keyFile bytes.Buffer
//	err = cryptor.EncryptMasterKey(&keyFile, []byte("correct horse battery staple"))
//
//	// Encrypt a file.
//	out, _ := fs.OpenFile("d/XY/....", os.O_RDWR|os.O_CREATE, 0600)
//	n, err := cryptor.EncryptFile(plaintextReader, out)
//
// The Vault type composes these operations into per-path reads and writes
// over any absfs.FileSystem.
package vaultcrypt
