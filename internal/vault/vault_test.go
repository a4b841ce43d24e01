package vault

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/Conte777/TeleVault/internal/domain"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("Failed to generate test key: %v", err)
	}

	v, err := NewWithKey(key, 100000)
	if err != nil {
		t.Fatalf("Failed to create vault: %v", err)
	}
	return v
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	v := newTestVault(t)

	plaintext := "1BVtsOLQBu4wG1vXOr8mZ6fB3kQ9pYxW"
	record, err := v.Encrypt(plaintext, 42, "+989123456789")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if record.UserID != 42 {
		t.Errorf("Expected user ID 42, got %d", record.UserID)
	}
	if record.FormatVersion != FormatVersion {
		t.Errorf("Expected format version %q, got %q", FormatVersion, record.FormatVersion)
	}
	if len(record.Salt) != 16 {
		t.Errorf("Expected 16-byte salt, got %d bytes", len(record.Salt))
	}
	if record.KDFIterations != 100000 {
		t.Errorf("Expected 100000 iterations, got %d", record.KDFIterations)
	}

	decrypted, err := v.Decrypt(record)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("Round trip mismatch: got %q, want %q", decrypted, plaintext)
	}
}

func TestEncrypt_SamePlaintextDiffersEveryTime(t *testing.T) {
	v := newTestVault(t)

	first, err := v.Encrypt("same-session-string", 1, "acc")
	if err != nil {
		t.Fatalf("First Encrypt failed: %v", err)
	}
	second, err := v.Encrypt("same-session-string", 1, "acc")
	if err != nil {
		t.Fatalf("Second Encrypt failed: %v", err)
	}

	if bytes.Equal(first.Ciphertext, second.Ciphertext) {
		t.Error("Two encryptions of the same plaintext produced identical ciphertext")
	}
	if bytes.Equal(first.Salt, second.Salt) {
		t.Error("Two encryptions reused the same salt")
	}
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	v := newTestVault(t)

	record, err := v.Encrypt("secret session", 7, "acc")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Flip every byte in turn; decryption must always fail cleanly
	for i := range record.Ciphertext {
		tampered := *record
		tampered.Ciphertext = append([]byte(nil), record.Ciphertext...)
		tampered.Ciphertext[i] ^= 0xFF

		if _, err := v.Decrypt(&tampered); !errors.Is(err, domain.ErrDecryptionFailed) {
			t.Fatalf("Byte %d: expected ErrDecryptionFailed, got %v", i, err)
		}
	}
}

func TestDecrypt_TamperedSalt(t *testing.T) {
	v := newTestVault(t)

	record, err := v.Encrypt("secret session", 7, "acc")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	record.Salt[0] ^= 0x01
	if _, err := v.Decrypt(record); !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Errorf("Expected ErrDecryptionFailed on tampered salt, got %v", err)
	}
}

func TestDecrypt_WrongMasterKey(t *testing.T) {
	v1 := newTestVault(t)
	v2 := newTestVault(t)

	record, err := v1.Encrypt("secret session", 7, "acc")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if _, err := v2.Decrypt(record); !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Errorf("Expected ErrDecryptionFailed with different master key, got %v", err)
	}
}

func TestDecrypt_CorruptRecord(t *testing.T) {
	v := newTestVault(t)

	cases := []*domain.EncryptedSessionRecord{
		nil,
		{},
		{Salt: make([]byte, 16), FormatVersion: FormatVersion},
		{Salt: make([]byte, 8), Ciphertext: []byte("short"), FormatVersion: FormatVersion},
		{Salt: make([]byte, 16), Ciphertext: []byte("x"), FormatVersion: "1.0", KDFIterations: 100000},
	}

	for i, record := range cases {
		if _, err := v.Decrypt(record); !errors.Is(err, domain.ErrDecryptionFailed) {
			t.Errorf("Case %d: expected ErrDecryptionFailed, got %v", i, err)
		}
	}
}

func TestNewWithKey_RejectsWeakParameters(t *testing.T) {
	if _, err := NewWithKey(make([]byte, 16), 100000); err == nil {
		t.Error("Expected error for short master key, got nil")
	}
	if _, err := NewWithKey(make([]byte, 32), 1000); err == nil {
		t.Error("Expected error for weak iteration count, got nil")
	}
}
