package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"unicode/utf8"
)

// KeySize is the required key length for AES-256-GCM.
const KeySize = 32

// ErrCipher is returned for every decryption failure. The cause is
// deliberately not distinguished so callers cannot leak which part of the
// input was invalid.
var ErrCipher = errors.New("crypto: cipher operation failed")

// Encrypt seals plaintext with AES-256-GCM. The random 96-bit nonce is
// prepended to the returned ciphertext.
func Encrypt(key []byte, plaintext string) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, ErrCipher
	}
	return gcm.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt opens a payload produced by Encrypt and returns the plaintext.
func Decrypt(key []byte, payload []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonceSize := gcm.NonceSize()
	if len(payload) < nonceSize {
		return "", ErrCipher
	}
	plain, err := gcm.Open(nil, payload[:nonceSize], payload[nonceSize:], nil)
	if err != nil {
		return "", ErrCipher
	}
	if !utf8.Valid(plain) {
		return "", ErrCipher
	}
	return string(plain), nil
}

// EncryptToString seals plaintext and base64-encodes the result for storage
// in a text column.
func EncryptToString(key []byte, plaintext string) (string, error) {
	sealed, err := Encrypt(key, plaintext)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptFromString reverses EncryptToString.
func DecryptFromString(key []byte, encoded string) (string, error) {
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrCipher
	}
	return Decrypt(key, payload)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrCipher
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrCipher
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrCipher
	}
	return gcm, nil
}
