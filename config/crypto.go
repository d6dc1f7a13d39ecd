package config

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

// encryptPrefix tags encrypted values so plain values written by older
// versions (or by hand) still round-trip.
const encryptPrefix = "_encrypted_"

// cipher encrypts password values at rest with a key derived from the
// server ID, so settings files can not be copied between installs with
// credentials intact.
type cipher struct {
	key [32]byte
}

func newCipher(serverID string) *cipher {
	return &cipher{key: sha256.Sum256([]byte(serverID))}
}

// Encrypt seals a plain string. Already-encrypted input is returned as is.
func (c *cipher) Encrypt(plain string) (string, error) {
	if strings.HasPrefix(plain, encryptPrefix) {
		return plain, nil
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], []byte(plain), &nonce, &c.key)
	return encryptPrefix + base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed string. Input without the encryption prefix is
// returned unchanged.
func (c *cipher) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, encryptPrefix) {
		return value, nil
	}
	sealed, err := base64.URLEncoding.DecodeString(strings.TrimPrefix(value, encryptPrefix))
	if err != nil {
		return "", fmt.Errorf("malformed encrypted value: %w", err)
	}
	if len(sealed) < 24 {
		return "", errors.New("malformed encrypted value: too short")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &c.key)
	if !ok {
		return "", errors.New("decryption failed: wrong server key")
	}
	return string(plain), nil
}
