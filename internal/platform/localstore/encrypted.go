package localstore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// Encrypted seals every value with AES-256-GCM before it reaches the
// underlying store. Keys stay in clear text.
type Encrypted struct {
	next Store
	aead cipher.AEAD
}

// NewEncrypted wraps next. An empty key returns next unchanged.
func NewEncrypted(next Store, key string) (Store, error) {
	if key == "" {
		return next, nil
	}
	decoded := decodeKey(key)
	if len(decoded) != 32 {
		return nil, fmt.Errorf("LOCAL_STORE_KEY must be 32 bytes after decoding, got %d", len(decoded))
	}
	block, err := aes.NewCipher(decoded)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Encrypted{next: next, aead: aead}, nil
}

// Get drops entries that no longer decrypt, such as ones written under a
// previous key, and reports them as absent.
func (e *Encrypted) Get(ctx context.Context, key string) (string, bool, error) {
	raw, ok, err := e.next.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	plain, err := e.open(raw)
	if err != nil {
		if rmErr := e.next.Remove(ctx, key); rmErr != nil {
			return "", false, rmErr
		}
		return "", false, nil
	}
	return plain, true, nil
}

func (e *Encrypted) Set(ctx context.Context, key, value string) error {
	sealed, err := e.seal(value)
	if err != nil {
		return err
	}
	return e.next.Set(ctx, key, sealed)
}

func (e *Encrypted) Remove(ctx context.Context, key string) error {
	return e.next.Remove(ctx, key)
}

// Keys are stored in the clear.
func (e *Encrypted) Keys(ctx context.Context, prefix string) ([]string, error) {
	return e.next.Keys(ctx, prefix)
}

func (e *Encrypted) seal(value string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(value), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (e *Encrypted) open(raw string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", err
	}
	if len(data) < e.aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, body := data[:e.aead.NonceSize()], data[e.aead.NonceSize():]
	plain, err := e.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// decodeKey accepts hex, base64 or raw bytes.
func decodeKey(raw string) []byte {
	if len(raw) == 64 {
		if decoded, err := hex.DecodeString(raw); err == nil {
			return decoded
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	return []byte(raw)
}
