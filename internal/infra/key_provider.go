package infra

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
)

const (
	keyFileName = ".statekey"
	keySize     = 32 // SQLCipher raw key length
)

// FileKeyProvider implements domain.KeyProvider with a hex key file next
// to the encrypted state. Hex matches the x'...' raw key form SQLCipher takes.
type FileKeyProvider struct {
	keyPath string
}

// NewFileKeyProvider creates a FileKeyProvider for the given state directory.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{keyPath: filepath.Join(dataDir, keyFileName)}
}

// GetKey reads and validates the key file.
func (p *FileKeyProvider) GetKey() ([]byte, error) {
	raw, err := os.ReadFile(p.keyPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("state key %s: %w", p.keyPath, domain.ErrConfigMissing)
		}
		return nil, fmt.Errorf("read state key %s: %w", p.keyPath, err)
	}

	key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("state key %s: %v: %w", p.keyPath, err, domain.ErrConfigCorrupt)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("state key %s holds %d bytes, want %d: %w",
			p.keyPath, len(key), keySize, domain.ErrConfigCorrupt)
	}
	return key, nil
}

// StoreKey writes a new key file owner-readable only. It never replaces an
// existing key: the database it unlocks would become unreadable.
func (p *FileKeyProvider) StoreKey(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("state key must be %d bytes, got %d", keySize, len(key))
	}
	if err := os.MkdirAll(filepath.Dir(p.keyPath), 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	f, err := os.OpenFile(p.keyPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("create state key %s: %w", p.keyPath, err)
	}
	if _, err := f.WriteString(hex.EncodeToString(key) + "\n"); err != nil {
		f.Close()
		os.Remove(p.keyPath)
		return fmt.Errorf("write state key %s: %w", p.keyPath, err)
	}
	return f.Close()
}

// KeyExists checks if the key file exists.
func (p *FileKeyProvider) KeyExists() bool {
	_, err := os.Stat(p.keyPath)
	return err == nil
}

// KeyPath returns the key file location.
func (p *FileKeyProvider) KeyPath() string {
	return p.keyPath
}

// GenerateKey returns keySize random bytes.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate state key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the stored key, generating one on first use. When the
// CLI and the daemon race on first use, the loser reads the winner's key.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		if errors.Is(err, os.ErrExist) {
			return provider.GetKey()
		}
		return nil, err
	}
	return key, nil
}

var _ domain.KeyProvider = (*FileKeyProvider)(nil)
