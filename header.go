package vaultcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
)

// File header layout (104 bytes):
//
//	┌──────────────────────────────────────────────┐
//	│  0..16   header IV (AES-CBC IV, MAC binding) │
//	│ 16..24   content nonce (upper CTR counter)   │
//	│ 24..72   AES-CBC(primary, IV) of             │
//	│          { u64 plaintext length ‖            │
//	│            32-byte file content key ‖ pad }  │
//	│ 72..104  HMAC-SHA256(mac, header[0..72])     │
//	└──────────────────────────────────────────────┘
//
// All integers are big-endian.

// fileHeader is the decrypted view of a file header. The content key is
// sensitive and must be destroyed when the operation finishes.
type fileHeader struct {
	iv              []byte
	nonce           []byte
	contentKey      []byte
	plaintextLength int64
}

// destroy zeroizes the per-file content key.
func (h *fileHeader) destroy() {
	zero(h.contentKey)
}

// newFileHeader generates the random material for a new encrypted file.
func newFileHeader() (*fileHeader, error) {
	iv, err := randomBytes(headerIVLength)
	if err != nil {
		return nil, err
	}
	nonce, err := randomBytes(NonceLength)
	if err != nil {
		return nil, err
	}
	contentKey, err := randomBytes(FileKeyLength)
	if err != nil {
		return nil, err
	}
	return &fileHeader{iv: iv, nonce: nonce, contentKey: contentKey}, nil
}

// encodeHeader assembles and encrypts the 104-byte header. The sensitive
// block carries the true plaintext length and the per-file content key.
func encodeHeader(primaryKey, macKey []byte, h *fileHeader) ([]byte, error) {
	payload := make([]byte, headerPayloadLength)
	binary.BigEndian.PutUint64(payload[:8], uint64(h.plaintextLength))
	copy(payload[8:], h.contentKey)
	padded := pkcs5Pad(payload, AESBlockLength)
	defer zero(padded)
	defer zero(payload)

	block, err := aes.NewCipher(primaryKey)
	if err != nil {
		return nil, &EncryptError{Message: "failed to initialize header cipher", Err: err}
	}

	header := make([]byte, HeaderLength)
	copy(header[:headerIVLength], h.iv)
	copy(header[headerIVLength:headerIVLength+NonceLength], h.nonce)
	cipher.NewCBCEncrypter(block, h.iv).CryptBlocks(header[24:headerMACOffset], padded)

	mac := hmac.New(sha256.New, macKey)
	mac.Write(header[:headerMACOffset])
	copy(header[headerMACOffset:], mac.Sum(nil))
	return header, nil
}

// decodeHeader verifies (when authenticate is set) and decrypts a 104-byte
// header. The MAC is checked in constant time before the sensitive block is
// touched.
func decodeHeader(primaryKey, macKey, header []byte, authenticate bool) (*fileHeader, error) {
	if len(header) != HeaderLength {
		return nil, &DecryptError{Reason: fmt.Sprintf("header must be %d bytes, got %d", HeaderLength, len(header))}
	}

	if authenticate {
		mac := hmac.New(sha256.New, macKey)
		mac.Write(header[:headerMACOffset])
		if !hmac.Equal(mac.Sum(nil), header[headerMACOffset:]) {
			return nil, &MacAuthError{Block: -1}
		}
	}

	block, err := aes.NewCipher(primaryKey)
	if err != nil {
		return nil, &DecryptError{Reason: "failed to initialize header cipher", Err: err}
	}

	h := &fileHeader{
		iv:    append([]byte(nil), header[:headerIVLength]...),
		nonce: append([]byte(nil), header[headerIVLength:headerIVLength+NonceLength]...),
	}

	padded := make([]byte, headerSensitiveLength)
	cipher.NewCBCDecrypter(block, h.iv).CryptBlocks(padded, header[24:headerMACOffset])
	defer zero(padded)

	payload, err := pkcs5Unpad(padded, AESBlockLength)
	if err != nil {
		return nil, &DecryptError{Reason: "header padding invalid", Err: err}
	}
	if len(payload) != headerPayloadLength {
		return nil, &DecryptError{Reason: fmt.Sprintf("header payload must be %d bytes, got %d", headerPayloadLength, len(payload))}
	}

	length := binary.BigEndian.Uint64(payload[:8])
	if length > math.MaxInt64 {
		return nil, &DecryptError{Reason: "declared plaintext length out of range"}
	}
	h.plaintextLength = int64(length)
	h.contentKey = append([]byte(nil), payload[8:]...)
	return h, nil
}

// pkcs5Pad appends PKCS#5 padding up to a multiple of blockSize.
func pkcs5Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// pkcs5Unpad strips and validates PKCS#5 padding.
func pkcs5Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("padded data length %d not a multiple of %d", len(data), blockSize)
	}
	padLen := int(data[len(data)-1])
	if padLen < 1 || padLen > blockSize {
		return nil, fmt.Errorf("invalid padding length %d", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("inconsistent padding bytes")
		}
	}
	return data[:len(data)-padLen], nil
}
