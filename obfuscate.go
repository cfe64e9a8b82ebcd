package vaultcrypt

import (
	"crypto/rand"
	"io"
)

// obfuscatedReader wraps a plaintext input so that very small files do not
// betray their size: once the input is exhausted, random padding is
// appended up to the threshold. The true byte count is recorded inside the
// encrypted header, so readers truncate the padding away.
type obfuscatedReader struct {
	r          io.Reader
	threshold  int64
	realLength int64
	padLeft    int64
	eof        bool
}

func newObfuscatedReader(r io.Reader, threshold int64) *obfuscatedReader {
	return &obfuscatedReader{r: r, threshold: threshold}
}

func (o *obfuscatedReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if !o.eof {
		n, err := o.r.Read(p)
		o.realLength += int64(n)
		switch err {
		case nil:
			return n, nil
		case io.EOF:
			o.eof = true
			if o.realLength < o.threshold {
				o.padLeft = o.threshold - o.realLength
			}
			if n > 0 {
				return n, nil
			}
		default:
			return n, err
		}
	}

	if o.padLeft > 0 {
		n := len(p)
		if int64(n) > o.padLeft {
			n = int(o.padLeft)
		}
		if _, err := io.ReadFull(rand.Reader, p[:n]); err != nil {
			return 0, NewIOError("read random padding", err)
		}
		o.padLeft -= int64(n)
		return n, nil
	}

	return 0, io.EOF
}

// RealInputLength reports the true byte count of the wrapped input. Only
// meaningful after Read has returned io.EOF.
func (o *obfuscatedReader) RealInputLength() int64 {
	return o.realLength
}
