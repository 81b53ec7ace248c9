package backup

import (
	"bytes"
	"testing"
)

func TestGenerateSalt(t *testing.T) {
	salt1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}
	if len(salt1) != saltSize {
		t.Errorf("salt length = %d, want %d", len(salt1), saltSize)
	}

	salt2, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt 2: %v", err)
	}
	if bytes.Equal(salt1, salt2) {
		t.Error("two salts should not be equal")
	}
}

func TestDeriveKey(t *testing.T) {
	salt := []byte("1234567890abcdef")

	key1 := DeriveKey("mypassphrase", salt)
	key2 := DeriveKey("mypassphrase", salt)
	if !bytes.Equal(key1, key2) {
		t.Error("same passphrase+salt should produce same key")
	}
	if len(key1) != keySize {
		t.Errorf("key length = %d, want %d", len(key1), keySize)
	}
	if bytes.Equal(key1, DeriveKey("other", salt)) {
		t.Error("different passphrases should produce different keys")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	original := []byte("This is test database content with some data in it.")

	sealed, err := Encrypt(original, "correct horse")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if len(sealed) <= saltSize+nonceSize+len(original) {
		t.Errorf("sealed length %d too small", len(sealed))
	}
	if bytes.Contains(sealed, original) {
		t.Error("ciphertext contains plaintext")
	}

	opened, err := Decrypt(sealed, "correct horse")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(opened, original) {
		t.Errorf("decrypted = %q, want %q", opened, original)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	sealed, err := Encrypt([]byte("secret data"), "right")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := Decrypt(sealed, "wrong"); err == nil {
		t.Error("expected error with wrong passphrase")
	}
}

func TestDecryptTruncated(t *testing.T) {
	if _, err := Decrypt([]byte("short"), "x"); err == nil {
		t.Error("expected error for truncated input")
	}
}

func TestEncodeDecode(t *testing.T) {
	snapshot := bytes.Repeat([]byte("SQLite format 3\x00"), 64)

	tests := []struct {
		name       string
		passphrase string
	}{
		{"plain gzip", ""},
		{"encrypted", "hunter2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := Encode(snapshot, tt.passphrase)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if len(enc) >= len(snapshot) {
				t.Errorf("encoded %d bytes, expected compression below %d", len(enc), len(snapshot))
			}
			dec, err := Decode(enc, tt.passphrase)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !bytes.Equal(dec, snapshot) {
				t.Error("round trip mismatch")
			}
		})
	}
}
