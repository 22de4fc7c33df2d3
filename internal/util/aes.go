package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

const (
	AESKeySize  = 32
	GCMTagSize  = 16
	GCMIVLength = 12
)

// SealAES encrypts plainText with AES-256-GCM under a fresh random 96-bit IV
// and returns ciphertext, IV and authentication tag separately. The IV is
// generated per call and never reused.
func SealAES(plainText, rawKey []byte) (cipherText, iv, tag []byte, err error) {
	gcm, err := newGCM(rawKey)
	if err != nil {
		return nil, nil, nil, err
	}

	iv = make([]byte, GCMIVLength)
	if _, err = io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, nil, fmt.Errorf("generating IV: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plainText, nil)
	cipherText = sealed[:len(sealed)-GCMTagSize]
	tag = sealed[len(sealed)-GCMTagSize:]
	return cipherText, iv, tag, nil
}

// OpenAES decrypts and verifies ciphertext produced by SealAES. Any
// modification of ciphertext, IV or tag fails verification.
func OpenAES(cipherText, iv, tag, rawKey []byte) ([]byte, error) {
	gcm, err := newGCM(rawKey)
	if err != nil {
		return nil, err
	}
	if len(iv) != GCMIVLength {
		return nil, fmt.Errorf("invalid IV length: got %d, want %d", len(iv), GCMIVLength)
	}
	if len(tag) != GCMTagSize {
		return nil, fmt.Errorf("invalid tag length: got %d, want %d", len(tag), GCMTagSize)
	}

	sealed := make([]byte, 0, len(cipherText)+len(tag))
	sealed = append(sealed, cipherText...)
	sealed = append(sealed, tag...)

	plainText, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting ciphertext: %w", err)
	}
	return plainText, nil
}

func newGCM(rawKey []byte) (cipher.AEAD, error) {
	if len(rawKey) != AESKeySize {
		return nil, fmt.Errorf("invalid AES key size: got %d, want %d", len(rawKey), AESKeySize)
	}
	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, GCMTagSize)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

func NewAESKey() ([]byte, error) {
	rawKey := make([]byte, AESKeySize)
	if _, err := rand.Read(rawKey); err != nil {
		return nil, fmt.Errorf("generating AES key: %w", err)
	}
	return rawKey, nil
}
