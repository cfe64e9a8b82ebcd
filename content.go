package vaultcrypt

import (
	"crypto/cipher"
	"crypto/hmac"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
)

// Content layout on disk, after the 104-byte header:
//
//	for i = 0..N-1:  ciphertext block i (≤ 32 KiB) ‖ MAC i (32 bytes)
//
// Block i is encrypted with AES-CTR under the per-file content key; the
// counter block is the 8-byte file nonce followed by the big-endian count of
// AES blocks preceding block i. Its MAC is
//
//	HMAC-SHA256(mac, headerIV ‖ u64(i) ‖ ciphertext)
//
// Binding the header IV prevents swapping blocks between files that share a
// mac key; binding the block index prevents reordering and truncation in
// the middle of a file.

// ctrCounterForBlock builds the initial CTR counter block for a given
// content block index.
func ctrCounterForBlock(nonce []byte, blockIndex uint64) []byte {
	counter := make([]byte, AESBlockLength)
	copy(counter, nonce)
	binary.BigEndian.PutUint64(counter[NonceLength:], blockIndex*(ContentMACBlock/AESBlockLength))
	return counter
}

// blockMAC computes and returns the MAC of one content block, reusing the
// given HMAC instance.
func blockMAC(mac hash.Hash, headerIV []byte, blockIndex uint64, ciphertext []byte) []byte {
	var index [8]byte
	binary.BigEndian.PutUint64(index[:], blockIndex)
	mac.Reset()
	mac.Write(headerIV)
	mac.Write(index[:])
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

// encryptProcessor turns plaintext batches into ciphertext-plus-MAC
// batches. Each worker owns one instance: the AES block cipher is stateless
// and shared, the HMAC instance is not.
type encryptProcessor struct {
	block    cipher.Block
	mac      hash.Hash
	headerIV []byte
	nonce    []byte
}

func (p *encryptProcessor) process(batch blocksData) ([]byte, error) {
	ciphertext := make([]byte, len(batch.data))
	stream := cipher.NewCTR(p.block, ctrCounterForBlock(p.nonce, batch.firstBlock))
	stream.XORKeyStream(ciphertext, batch.data)

	out := make([]byte, 0, len(ciphertext)+batch.count*MACLength)
	for i := 0; i < batch.count; i++ {
		start := i * ContentMACBlock
		end := start + ContentMACBlock
		if end > len(ciphertext) {
			end = len(ciphertext)
		}
		ct := ciphertext[start:end]
		out = append(out, ct...)
		out = append(out, blockMAC(p.mac, p.headerIV, batch.firstBlock+uint64(i), ct)...)
	}
	return out, nil
}

// decryptProcessor turns ciphertext-plus-MAC batches back into plaintext.
// MACs are verified before any plaintext is produced.
type decryptProcessor struct {
	block        cipher.Block
	mac          hash.Hash
	headerIV     []byte
	nonce        []byte
	authenticate bool
}

func (p *decryptProcessor) process(batch blocksData) ([]byte, error) {
	out := make([]byte, 0, len(batch.data)-batch.count*MACLength)
	data := batch.data
	for i := 0; i < batch.count; i++ {
		blockIndex := batch.firstBlock + uint64(i)
		stride := contentBlockStride
		if stride > len(data) {
			stride = len(data)
		}
		if stride <= MACLength {
			return nil, &DecryptError{Reason: fmt.Sprintf("content block %d truncated", blockIndex)}
		}
		ct := data[:stride-MACLength]
		tag := data[stride-MACLength : stride]
		data = data[stride:]

		if p.authenticate {
			if !hmac.Equal(tag, blockMAC(p.mac, p.headerIV, blockIndex, ct)) {
				return nil, &MacAuthError{Block: int64(blockIndex)}
			}
		}

		plaintext := make([]byte, len(ct))
		stream := cipher.NewCTR(p.block, ctrCounterForBlock(p.nonce, blockIndex))
		stream.XORKeyStream(plaintext, ct)
		out = append(out, plaintext...)
	}
	return out, nil
}

// lengthLimitingWriter passes through at most limit bytes and silently
// discards the rest. Decrypted padding beyond the declared plaintext length
// never reaches the caller's sink.
type lengthLimitingWriter struct {
	w       io.Writer
	limit   int64
	written int64
}

func newLengthLimitingWriter(w io.Writer, limit int64) *lengthLimitingWriter {
	return &lengthLimitingWriter{w: w, limit: limit}
}

func (lw *lengthLimitingWriter) Write(p []byte) (int, error) {
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		// Consumed but discarded; report success so upstream keeps its
		// accounting simple.
		return len(p), nil
	}
	keep := p
	if int64(len(p)) > remaining {
		keep = p[:remaining]
	}
	n, err := lw.w.Write(keep)
	lw.written += int64(n)
	if err != nil {
		return n, err
	}
	return len(p), nil
}

// BytesWritten reports how many bytes reached the underlying writer.
func (lw *lengthLimitingWriter) BytesWritten() int64 {
	return lw.written
}
