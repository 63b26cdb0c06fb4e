// Package secret keeps provider API keys encrypted at rest.
package secret

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tink-crypto/tink-go/v2/aead"
	"github.com/tink-crypto/tink-go/v2/insecurecleartextkeyset"
	"github.com/tink-crypto/tink-go/v2/keyset"
	"github.com/tink-crypto/tink-go/v2/tink"
)

// Vault encrypts with an AES-256-GCM keyset. The actor id is bound as associated data,
// so a ciphertext copied to another user's row does not decrypt.
type Vault struct {
	primitive tink.AEAD
}

// NewVault generates a fresh in-memory keyset.
func NewVault() (*Vault, error) {
	handle, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
	if err != nil {
		return nil, fmt.Errorf("keyset.NewHandle failed: %w", err)
	}
	return fromHandle(handle)
}

// Open loads the keyset at path, creating it with mode 0600 when missing.
func Open(path string) (*Vault, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return create(path)
	}
	if err != nil {
		return nil, err
	}
	handle, err := insecurecleartextkeyset.Read(keyset.NewJSONReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("read keyset %s: %w", path, err)
	}
	return fromHandle(handle)
}

func create(path string) (*Vault, error) {
	handle, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
	if err != nil {
		return nil, fmt.Errorf("keyset.NewHandle failed: %w", err)
	}
	var buf bytes.Buffer
	if err := insecurecleartextkeyset.Write(handle, keyset.NewJSONWriter(&buf)); err != nil {
		return nil, fmt.Errorf("write keyset: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return nil, err
	}
	return fromHandle(handle)
}

func fromHandle(handle *keyset.Handle) (*Vault, error) {
	primitive, err := aead.New(handle)
	if err != nil {
		return nil, fmt.Errorf("aead.New failed: %w", err)
	}
	return &Vault{primitive: primitive}, nil
}

func (v *Vault) Encrypt(plaintext, actorID string) ([]byte, error) {
	ct, err := v.primitive.Encrypt([]byte(plaintext), []byte(actorID))
	if err != nil {
		return nil, fmt.Errorf("encryption failed: %w", err)
	}
	return ct, nil
}

func (v *Vault) Decrypt(ciphertext []byte, actorID string) (string, error) {
	pt, err := v.primitive.Decrypt(ciphertext, []byte(actorID))
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return string(pt), nil
}
