package tokenstore

import (
	"bytes"
	"errors"
	"testing"
)

func testKey() []byte {
	key := make([]byte, keySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func TestAESCipherRoundTrip(t *testing.T) {
	c, err := NewAESCipher(testKey())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	plaintext := []byte(`{"refresh_token":"secret"}`)
	blob, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if blob[0] != blobVersion {
		t.Errorf("blob version = %d, want %d", blob[0], blobVersion)
	}
	if bytes.Contains(blob, plaintext) {
		t.Error("encrypted blob contains plaintext")
	}

	got, err := c.Decrypt(blob)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip mismatch: got %q, want %q", got, plaintext)
	}
}

func TestAESCipherNonceVaries(t *testing.T) {
	c, err := NewAESCipher(testKey())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, err := c.Encrypt([]byte("same"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := c.Encrypt([]byte("same"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same plaintext produced identical blobs")
	}
}

func TestAESCipherInvalidKeySize(t *testing.T) {
	if _, err := NewAESCipher(make([]byte, 16)); !errors.Is(err, ErrInvalidKeySize) {
		t.Fatalf("expected ErrInvalidKeySize, got %v", err)
	}
}

func TestAESCipherDecryptErrors(t *testing.T) {
	c, err := NewAESCipher(testKey())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	blob, err := c.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func([]byte) []byte
		wantErr error
	}{
		{
			name:    "truncated",
			mutate:  func(b []byte) []byte { return b[:4] },
			wantErr: ErrInvalidBlobSize,
		},
		{
			name: "unknown version",
			mutate: func(b []byte) []byte {
				b[0] = 0x7f
				return b
			},
			wantErr: ErrUnsupportedVersion,
		},
		{
			name: "tampered ciphertext",
			mutate: func(b []byte) []byte {
				b[len(b)-1] ^= 0xff
				return b
			},
			wantErr: ErrDecryptionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutated := tt.mutate(append([]byte(nil), blob...))
			if _, err := c.Decrypt(mutated); !errors.Is(err, tt.wantErr) {
				t.Errorf("Decrypt() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAESCipherWrongKey(t *testing.T) {
	c1, err := NewAESCipher(testKey())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c2, err := NewAESCipher(bytes.Repeat([]byte{0xaa}, keySize))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blob, err := c1.Encrypt([]byte("payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c2.Decrypt(blob); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}
