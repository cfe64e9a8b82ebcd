package vaultcrypt

import (
	"crypto/aes"
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/absfs/absfs"
	"github.com/miscreant/miscreant.go"
)

// Cryptor is the cryptographic engine of a vault. It owns the two master
// keys and exposes master-key wrapping, filename encryption and the
// authenticated file content codec.
//
// A Cryptor starts Fresh with randomly generated master keys, so a new
// vault can be created immediately with EncryptMasterKey. A successful
// DecryptMasterKey replaces the keys with the unwrapped pair (Loaded).
// Destroy zeroizes all key material; a destroyed Cryptor rejects every
// cryptographic operation.
type Cryptor struct {
	mu        sync.Mutex
	keys      *masterKeys
	siv       *miscreant.Cipher
	params    Params
	destroyed bool
}

// New creates a Cryptor with fresh random master keys and default
// parameters.
func New() (*Cryptor, error) {
	return NewWithParams(DefaultParams())
}

// NewWithParams creates a Cryptor with fresh random master keys.
func NewWithParams(params Params) (*Cryptor, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	keys, err := newRandomMasterKeys()
	if err != nil {
		return nil, err
	}
	siv, err := newFilenameSIV(keys)
	if err != nil {
		keys.destroy()
		return nil, err
	}

	return &Cryptor{keys: keys, siv: siv, params: params}, nil
}

// newFilenameSIV builds the deterministic filename cipher from the master
// key pair.
func newFilenameSIV(keys *masterKeys) (*miscreant.Cipher, error) {
	combined := keys.sivKey()
	defer zero(combined)
	siv, err := miscreant.NewAESCMACSIV(combined)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize filename cipher: %w", err)
	}
	return siv, nil
}

// EncryptMasterKey wraps the master keys under a KEK derived from the
// passphrase and writes the key file to w. The passphrase is wiped before
// return; pass a disposable copy.
func (c *Cryptor) EncryptMasterKey(w io.Writer, passphrase []byte) error {
	defer zero(passphrase)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}

	kf, err := wrapMasterKeys(c.keys, passphrase, c.params.Scrypt)
	if err != nil {
		return err
	}
	return writeKeyFile(w, kf)
}

// DecryptMasterKey reads a key file from r and unwraps the master keys with
// the passphrase. On success the Cryptor's keys are replaced; on any
// failure the Cryptor is left unchanged. The passphrase is wiped before
// return.
func (c *Cryptor) DecryptMasterKey(r io.Reader, passphrase []byte) error {
	defer zero(passphrase)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}

	kf, err := readKeyFile(r)
	if err != nil {
		return err
	}
	keys, err := unwrapMasterKeys(kf, passphrase)
	if err != nil {
		return err
	}
	siv, err := newFilenameSIV(keys)
	if err != nil {
		keys.destroy()
		return err
	}

	c.keys.destroy()
	c.keys = keys
	c.siv = siv
	return nil
}

// EncryptFile encrypts everything read from in into out. The sink is
// truncated first; 104 bytes are reserved for the header, the content
// blocks are committed in order by the worker pool, and the header is
// written last, once the true plaintext length is known. Returns the true
// plaintext length.
func (c *Cryptor) EncryptFile(in io.Reader, out absfs.File) (int64, error) {
	primary, macKey, err := c.snapshotKeys()
	if err != nil {
		return 0, err
	}

	h, err := newFileHeader()
	if err != nil {
		return 0, err
	}
	defer h.destroy()

	if err := out.Truncate(0); err != nil {
		return 0, NewIOError("truncate", err)
	}
	if _, err := out.Seek(HeaderLength, io.SeekStart); err != nil {
		return 0, NewIOErrorAt("seek", HeaderLength, err)
	}

	block, err := aes.NewCipher(h.contentKey)
	if err != nil {
		return 0, &EncryptError{Message: "failed to initialize content cipher", Err: err}
	}

	exec := newExecutor(out, c.workerCount(), func() blockProcessor {
		return &encryptProcessor{
			block:    block,
			mac:      hmac.New(sha256.New, macKey),
			headerIV: h.iv,
			nonce:    h.nonce,
		}
	})

	obf := newObfuscatedReader(in, ObfuscationThreshold)
	produceErr := produceBatches(obf, ContentMACBlock, exec)
	_, execErr := exec.waitUntilDone()
	if execErr != nil {
		return 0, execErr
	}
	if produceErr != nil {
		return 0, produceErr
	}

	h.plaintextLength = obf.RealInputLength()
	header, err := encodeHeader(primary, macKey, h)
	if err != nil {
		return 0, err
	}
	if _, err := out.Seek(0, io.SeekStart); err != nil {
		return 0, NewIOErrorAt("seek", 0, err)
	}
	if _, err := out.Write(header); err != nil {
		return 0, NewIOError("write header", err)
	}
	return h.plaintextLength, nil
}

// DecryptFile decrypts a whole file from in into out. When authenticate is
// set, the header MAC and every content MAC are verified before any
// plaintext of the corresponding block is released. Returns the number of
// bytes delivered to out.
func (c *Cryptor) DecryptFile(in io.ReadSeeker, out io.Writer, authenticate bool) (int64, error) {
	primary, macKey, err := c.snapshotKeys()
	if err != nil {
		return 0, err
	}

	h, err := readHeaderFrom(in, primary, macKey, authenticate)
	if err != nil {
		return 0, err
	}
	defer h.destroy()

	block, err := aes.NewCipher(h.contentKey)
	if err != nil {
		return 0, &DecryptError{Reason: "failed to initialize content cipher", Err: err}
	}

	lw := newLengthLimitingWriter(out, h.plaintextLength)
	exec := newExecutor(lw, c.workerCount(), func() blockProcessor {
		return &decryptProcessor{
			block:        block,
			mac:          hmac.New(sha256.New, macKey),
			headerIV:     h.iv,
			nonce:        h.nonce,
			authenticate: authenticate,
		}
	})

	produceErr := produceBatches(in, contentBlockStride, exec)
	_, execErr := exec.waitUntilDone()
	if execErr != nil {
		return lw.BytesWritten(), execErr
	}
	if produceErr != nil {
		return lw.BytesWritten(), produceErr
	}
	return lw.BytesWritten(), nil
}

// DecryptRange decrypts length plaintext bytes starting at pos into out.
// Unlike DecryptFile this path is single-threaded: it seeks directly to the
// first covering block and stops as soon as the range is satisfied.
// Requires pos+length within the declared plaintext length.
func (c *Cryptor) DecryptRange(in io.ReadSeeker, out io.Writer, pos, length int64, authenticate bool) (int64, error) {
	if err := ValidateOffset(pos, "pos"); err != nil {
		return 0, err
	}
	if err := ValidateLength(length, "length"); err != nil {
		return 0, err
	}

	primary, macKey, err := c.snapshotKeys()
	if err != nil {
		return 0, err
	}

	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return 0, NewIOErrorAt("seek", 0, err)
	}
	h, err := readHeaderFrom(in, primary, macKey, authenticate)
	if err != nil {
		return 0, err
	}
	defer h.destroy()

	if pos+length > h.plaintextLength {
		return 0, &DecryptError{
			Reason: fmt.Sprintf("range [%d, %d) exceeds declared length %d", pos, pos+length, h.plaintextLength),
		}
	}
	if length == 0 {
		return 0, nil
	}

	block, err := aes.NewCipher(h.contentKey)
	if err != nil {
		return 0, &DecryptError{Reason: "failed to initialize content cipher", Err: err}
	}

	startBlock := uint64(pos / ContentMACBlock)
	ciphertextOffset := int64(HeaderLength) + int64(startBlock)*contentBlockStride
	if _, err := in.Seek(ciphertextOffset, io.SeekStart); err != nil {
		return 0, NewIOErrorAt("seek", ciphertextOffset, err)
	}

	proc := &decryptProcessor{
		block:        block,
		mac:          hmac.New(sha256.New, macKey),
		headerIV:     h.iv,
		nonce:        h.nonce,
		authenticate: authenticate,
	}

	var written int64
	skip := pos % ContentMACBlock
	buf := make([]byte, contentBlockStride)
	for blockIndex := startBlock; written < length; blockIndex++ {
		n, rerr := io.ReadFull(in, buf)
		if rerr == io.EOF {
			break
		}
		if rerr != nil && rerr != io.ErrUnexpectedEOF {
			return written, NewIOError("read", rerr)
		}

		plaintext, perr := proc.process(blocksData{data: buf[:n], firstBlock: blockIndex, count: 1})
		if perr != nil {
			return written, perr
		}
		if skip >= int64(len(plaintext)) {
			return written, &DecryptError{Reason: "content block shorter than range offset"}
		}
		piece := plaintext[skip:]
		skip = 0
		if int64(len(piece)) > length-written {
			piece = piece[:length-written]
		}
		m, werr := out.Write(piece)
		written += int64(m)
		if werr != nil {
			return written, NewIOError("write", werr)
		}
	}
	return written, nil
}

// DecryptedContentLength probes the header of an encrypted file and returns
// the declared plaintext length. The second return value is false when the
// input ends before a complete header, in which case the length is unknown.
// A header MAC mismatch is reported as an error.
func (c *Cryptor) DecryptedContentLength(in io.Reader) (int64, bool, error) {
	primary, macKey, err := c.snapshotKeys()
	if err != nil {
		return 0, false, err
	}

	buf := make([]byte, HeaderLength)
	if _, err := io.ReadFull(in, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, false, nil
		}
		return 0, false, NewIOError("read header", err)
	}

	h, err := decodeHeader(primary, macKey, buf, true)
	if err != nil {
		return 0, false, err
	}
	defer h.destroy()
	return h.plaintextLength, true, nil
}

// Destroy zeroizes both master keys and permanently disables the Cryptor.
// Idempotent.
func (c *Cryptor) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.keys.destroy()
	c.siv = nil
	c.destroyed = true
}

// IsDestroyed reports whether Destroy has been called.
func (c *Cryptor) IsDestroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// snapshotKeys returns the live master keys, rejecting destroyed instances.
func (c *Cryptor) snapshotKeys() (primary, mac []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil, nil, ErrDestroyed
	}
	return c.keys.primary, c.keys.mac, nil
}

func (c *Cryptor) workerCount() int {
	if c.params.Workers > 0 {
		return c.params.Workers
	}
	return runtime.NumCPU()
}

// readHeaderFrom reads and decodes exactly one file header. A source
// shorter than a full header is an I/O error here; the length probe handles
// that case separately.
func readHeaderFrom(in io.Reader, primary, macKey []byte, authenticate bool) (*fileHeader, error) {
	buf := make([]byte, HeaderLength)
	if _, err := io.ReadFull(in, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, NewIOError("read header", ErrHeaderTooShort)
		}
		return nil, NewIOError("read header", err)
	}
	return decodeHeader(primary, macKey, buf, authenticate)
}

// produceBatches reads unitSize-granular batches from in and feeds them to
// the executor. Batches start at one block and double up to maxBatchBlocks.
// Only the final batch may end on a short block.
func produceBatches(in io.Reader, unitSize int, exec *executor) error {
	var blockIndex uint64
	batchBlocks := 1
	for {
		if exec.failed() {
			return nil
		}

		buf := make([]byte, batchBlocks*unitSize)
		n, err := io.ReadFull(in, buf)
		if err == io.EOF {
			return nil
		}
		if err != nil && err != io.ErrUnexpectedEOF {
			return NewIOError("read", err)
		}

		count := (n + unitSize - 1) / unitSize
		if qerr := exec.enqueue(blocksData{
			data:       buf[:n],
			firstBlock: blockIndex,
			count:      count,
		}); qerr != nil {
			return qerr
		}
		blockIndex += uint64(count)

		if err == io.ErrUnexpectedEOF {
			return nil
		}
		if batchBlocks < maxBatchBlocks {
			batchBlocks *= 2
		}
	}
}
