package encryption

import (
	"bytes"
	"testing"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() failed: %v", err)
	}

	k1, err := DeriveKey("pw", salt, testKDF)
	if err != nil {
		t.Fatalf("DeriveKey() failed: %v", err)
	}
	k2, _ := DeriveKey("pw", salt, testKDF)
	if !bytes.Equal(k1, k2) {
		t.Error("same inputs produced different keys")
	}
	if len(k1) != KeySize {
		t.Errorf("expected key length %d, got %d", KeySize, len(k1))
	}

	k3, _ := DeriveKey("other", salt, testKDF)
	if bytes.Equal(k1, k3) {
		t.Error("different passwords produced the same key")
	}
}

func TestDeriveKeyValidation(t *testing.T) {
	salt, _ := GenerateSalt()
	tests := []struct {
		name     string
		password string
		salt     []byte
		params   KDFParams
	}{
		{"empty password", "", salt, testKDF},
		{"short salt", "pw", salt[:8], testKDF},
		{"zero time", "pw", salt, KDFParams{Time: 0, MemoryKiB: 64, Threads: 1}},
		{"zero threads", "pw", salt, KDFParams{Time: 1, MemoryKiB: 64, Threads: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DeriveKey(tt.password, tt.salt, tt.params); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestCiphertextSize(t *testing.T) {
	tests := []struct {
		plain int64
		block int
		want  int64
	}{
		{0, 4, Overhead},
		{10, 4, 10 + 3*Overhead},
		{8, 4, 8 + 2*Overhead},
		{-1, 4, -1},
	}
	for _, tt := range tests {
		if got := CiphertextSize(tt.plain, tt.block); got != tt.want {
			t.Errorf("CiphertextSize(%d, %d) = %d, want %d", tt.plain, tt.block, got, tt.want)
		}
	}
}

func TestGenerateSecureRandomString(t *testing.T) {
	s, err := GenerateSecureRandomString(24)
	if err != nil {
		t.Fatalf("GenerateSecureRandomString() failed: %v", err)
	}
	if len(s) != 24 {
		t.Errorf("expected length 24, got %d", len(s))
	}
}
