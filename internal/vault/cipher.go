package vault

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher seals and opens credential payloads with XChaCha20-Poly1305.
// The tenant id is bound in as associated data so a sealed payload can never
// be replayed under another tenant, even by a buggy query.
type Cipher struct {
	key []byte
}

// NewCipher expects a 32-byte master key, hex encoded.
func NewCipher(masterKeyHex string) (*Cipher, error) {
	key, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("vault: decode master key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.New("vault: master key must be 32 bytes")
	}
	return &Cipher{key: key}, nil
}

// Seal encrypts plaintext for the tenant.
func (c *Cipher) Seal(tenantID string, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("vault: init aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, []byte(tenantID))
	return sealed, nil
}

// Open decrypts a sealed payload. A payload sealed for another tenant fails
// authentication.
func (c *Cipher) Open(tenantID string, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("vault: init aead: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, errors.New("vault: sealed payload too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(tenantID))
	if err != nil {
		return nil, fmt.Errorf("vault: open payload: %w", err)
	}
	return plaintext, nil
}
