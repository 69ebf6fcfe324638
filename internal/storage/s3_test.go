package storage

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncryptDecryptGCM(t *testing.T) {
	plain := []byte("%PDF-1.7 part bytes")
	enc, err := encryptGCM(plain, "secret")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !bytes.HasPrefix(enc, []byte(gcmMagic)) {
		t.Fatalf("missing magic header")
	}
	got, err := decryptGCM(enc, "secret")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("got %q, want %q", got, plain)
	}
	if _, err := decryptGCM(enc, "wrong"); !errors.Is(err, ErrDecrypt) {
		t.Errorf("wrong password: expected ErrDecrypt, got %v", err)
	}
	if _, err := decryptGCM(enc, ""); !errors.Is(err, ErrDecrypt) {
		t.Errorf("no password: expected ErrDecrypt, got %v", err)
	}
}

func TestParseS3URL(t *testing.T) {
	cases := []struct {
		in, bucket, key string
		ok              bool
	}{
		{"s3://scores/band/march.pdf", "scores", "band/march.pdf", true},
		{"s3://scores/", "", "", false},
		{"s3:///key", "", "", false},
		{"https://scores/key", "", "", false},
	}
	for _, tc := range cases {
		b, k, err := ParseS3URL(tc.in)
		if (err == nil) != tc.ok {
			t.Errorf("%s: err = %v", tc.in, err)
			continue
		}
		if b != tc.bucket || k != tc.key {
			t.Errorf("%s: got %q %q", tc.in, b, k)
		}
	}
}
