package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// encryptedHeader prefixes every encrypted backup file.
	encryptedHeader = "CVAULTE1"

	// Argon2id parameters (RFC 9106 second recommended option).
	argon2Time    = 3
	argon2Memory  = 64 * 1024 // KiB
	argon2Threads = 4
	argon2KeyLen  = 32 // AES-256

	saltLength = 16
)

// ErrWrongPassword is returned when an encrypted backup cannot be opened
// with the given password, or has been tampered with.
var ErrWrongPassword = errors.New("wrong backup password or corrupted backup")

// sealBackup encrypts a database image with AES-256-GCM under a key derived
// from password. The result is header || salt || nonce || ciphertext.
func sealBackup(plaintext []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("backup password is required")
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(encryptedHeader)+len(salt)+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, encryptedHeader...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, []byte(encryptedHeader)), nil
}

// openBackup reverses sealBackup.
func openBackup(sealed []byte, password string) ([]byte, error) {
	if !isSealed(sealed) {
		return nil, errors.New("backup is not encrypted")
	}
	if password == "" {
		return nil, errors.New("backup is encrypted: password is required")
	}

	body := sealed[len(encryptedHeader):]
	if len(body) < saltLength {
		return nil, ErrWrongPassword
	}
	salt, body := body[:saltLength], body[saltLength:]

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	if len(body) < gcm.NonceSize()+gcm.Overhead() {
		return nil, ErrWrongPassword
	}
	nonce, ciphertext := body[:gcm.NonceSize()], body[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(encryptedHeader))
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

func isSealed(data []byte) bool {
	return bytes.HasPrefix(data, []byte(encryptedHeader))
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
