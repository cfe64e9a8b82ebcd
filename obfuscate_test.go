package vaultcrypt

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"
)

func TestObfuscatedReaderPadsSmallInput(t *testing.T) {
	input := []byte("ten bytes!")
	o := newObfuscatedReader(bytes.NewReader(input), ObfuscationThreshold)

	out, err := io.ReadAll(o)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if int64(len(out)) != ObfuscationThreshold {
		t.Errorf("Padded stream is %d bytes, want %d", len(out), ObfuscationThreshold)
	}
	if !bytes.Equal(out[:len(input)], input) {
		t.Error("Input bytes must come first, unmodified")
	}
	if o.RealInputLength() != int64(len(input)) {
		t.Errorf("RealInputLength = %d, want %d", o.RealInputLength(), len(input))
	}
}

func TestObfuscatedReaderEmptyInput(t *testing.T) {
	o := newObfuscatedReader(bytes.NewReader(nil), ObfuscationThreshold)

	out, err := io.ReadAll(o)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if int64(len(out)) != ObfuscationThreshold {
		t.Errorf("Padded stream is %d bytes, want %d", len(out), ObfuscationThreshold)
	}
	if o.RealInputLength() != 0 {
		t.Errorf("RealInputLength = %d, want 0", o.RealInputLength())
	}

	// The padding should not be all zeros.
	if bytes.Equal(out, make([]byte, len(out))) {
		t.Error("Padding is all zeros, want random bytes")
	}
}

func TestObfuscatedReaderLeavesLargeInputAlone(t *testing.T) {
	sizes := []int64{ObfuscationThreshold, ObfuscationThreshold + 1, 5 * ObfuscationThreshold}
	for _, size := range sizes {
		input := make([]byte, size)
		if _, err := rand.Read(input); err != nil {
			t.Fatalf("Failed to generate input: %v", err)
		}

		o := newObfuscatedReader(bytes.NewReader(input), ObfuscationThreshold)
		out, err := io.ReadAll(o)
		if err != nil {
			t.Fatalf("ReadAll failed: %v", err)
		}
		if !bytes.Equal(out, input) {
			t.Errorf("Input of %d bytes was modified", size)
		}
		if o.RealInputLength() != size {
			t.Errorf("RealInputLength = %d, want %d", o.RealInputLength(), size)
		}
	}
}

// oneByteReader yields its content one byte at a time, exercising the
// reader against sources that return short reads.
type oneByteReader struct {
	data []byte
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestObfuscatedReaderShortReads(t *testing.T) {
	input := []byte("dribbled")
	o := newObfuscatedReader(&oneByteReader{data: append([]byte(nil), input...)}, ObfuscationThreshold)

	out, err := io.ReadAll(o)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if int64(len(out)) != ObfuscationThreshold {
		t.Errorf("Padded stream is %d bytes, want %d", len(out), ObfuscationThreshold)
	}
	if !bytes.Equal(out[:len(input)], input) {
		t.Error("Input bytes must come first, unmodified")
	}
	if o.RealInputLength() != int64(len(input)) {
		t.Errorf("RealInputLength = %d, want %d", o.RealInputLength(), len(input))
	}
}
