// Package vault turns plaintext session strings into at-rest-safe records
// bound to a process-wide master key. The master key is drawn from the
// system CSPRNG at startup and never leaves memory.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/Conte777/TeleVault/config"
	"github.com/Conte777/TeleVault/internal/domain"
)

const (
	// FormatVersion is stamped on every record for forward compatibility
	FormatVersion = "2.0"

	masterKeySize = 32
	saltSize      = 16
	derivedKeyLen = 32

	minIterations = 100000
)

// Vault encrypts and decrypts session records with per-record derived keys
type Vault struct {
	masterKey  []byte
	iterations int
}

// New creates a vault with a fresh random master key.
// Records encrypted by a previous process cannot be decrypted after restart;
// that is intentional: the master key is not derivable from any persisted
// artifact.
func New(cfg *config.VaultConfig) (*Vault, error) {
	key := make([]byte, masterKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}
	return NewWithKey(key, cfg.KDFIterations)
}

// NewWithKey creates a vault with an explicit master key
func NewWithKey(masterKey []byte, iterations int) (*Vault, error) {
	if len(masterKey) != masterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", masterKeySize, len(masterKey))
	}
	if iterations < minIterations {
		return nil, fmt.Errorf("KDF iterations must be at least %d, got %d", minIterations, iterations)
	}

	// Private copy; the caller's slice may be zeroed afterwards
	key := make([]byte, masterKeySize)
	copy(key, masterKey)

	return &Vault{
		masterKey:  key,
		iterations: iterations,
	}, nil
}

// Encrypt seals a plaintext session string into a record. Each call uses a
// fresh salt and nonce, so encrypting the same plaintext twice never yields
// identical ciphertext.
func (v *Vault) Encrypt(plaintext string, userID int64, accountID string) (*domain.EncryptedSessionRecord, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := v.newAEAD(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Nonce is prepended to the sealed data so decrypt needs only the record
	ciphertext := aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return &domain.EncryptedSessionRecord{
		UserID:        userID,
		AccountID:     accountID,
		Ciphertext:    ciphertext,
		Salt:          salt,
		KDFIterations: v.iterations,
		FormatVersion: FormatVersion,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Decrypt opens a record. Any tampering with ciphertext or salt, a wrong
// master key, or missing fields yields domain.ErrDecryptionFailed; partial
// plaintext is never returned.
func (v *Vault) Decrypt(record *domain.EncryptedSessionRecord) (string, error) {
	if record == nil || len(record.Salt) != saltSize || len(record.Ciphertext) == 0 {
		return "", domain.ErrDecryptionFailed
	}
	if record.FormatVersion != FormatVersion {
		return "", fmt.Errorf("%w: unsupported format version %q", domain.ErrDecryptionFailed, record.FormatVersion)
	}

	aead, err := v.newAEADWithIterations(record.Salt, record.KDFIterations)
	if err != nil {
		return "", domain.ErrDecryptionFailed
	}

	if len(record.Ciphertext) <= aead.NonceSize() {
		return "", domain.ErrDecryptionFailed
	}

	nonce := record.Ciphertext[:aead.NonceSize()]
	sealed := record.Ciphertext[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", domain.ErrDecryptionFailed
	}

	return string(plaintext), nil
}

func (v *Vault) newAEAD(salt []byte) (cipher.AEAD, error) {
	return v.newAEADWithIterations(salt, v.iterations)
}

func (v *Vault) newAEADWithIterations(salt []byte, iterations int) (cipher.AEAD, error) {
	if iterations < minIterations {
		return nil, fmt.Errorf("refusing weak KDF iteration count %d", iterations)
	}

	derived := pbkdf2.Key(v.masterKey, salt, iterations, derivedKeyLen, sha256.New)

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return aead, nil
}

// Ensure Vault implements domain.Vault interface
var _ domain.Vault = (*Vault)(nil)
