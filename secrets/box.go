// Package secrets provides the encrypted-at-rest credential store and its
// supporting AES-256-GCM primitives and key management.
package secrets

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"

	"github.com/lumenhq/lumen/internal/util"
)

// ErrIntegrity indicates ciphertext that fails authentication-tag
// verification: tampered data or the wrong key.
var ErrIntegrity = errors.New("integrity check failed")

var keyRE = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Blob is the wire form of one encrypted value: AES-256-GCM ciphertext,
// 96-bit IV and 128-bit authentication tag, all base64.
type Blob struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	AuthTag    string `json:"authTag"`
}

// GenerateKey returns a fresh 256-bit key as 64 lowercase hex characters.
func GenerateKey() (string, error) {
	raw, err := util.NewAESKey()
	if err != nil {
		return "", err
	}
	return util.HexEncode(raw), nil
}

// ParseKey validates and decodes a key string. Anything that is not exactly
// 64 lowercase hex characters is rejected — a malformed key is a
// configuration error and must fail at resolution time, not at use time.
func ParseKey(s string) ([]byte, error) {
	if !keyRE.MatchString(s) {
		return nil, fmt.Errorf("encryption key must be 64 lowercase hex characters")
	}
	return util.HexDecode(s)
}

// Encrypt seals plaintext under key with a fresh IV per call.
func Encrypt(plaintext string, key []byte) (Blob, error) {
	cipherText, iv, tag, err := util.SealAES([]byte(plaintext), key)
	if err != nil {
		return Blob{}, fmt.Errorf("encrypting: %w", err)
	}
	return Blob{
		Ciphertext: base64.StdEncoding.EncodeToString(cipherText),
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
	}, nil
}

// Decrypt opens a Blob. Verification failure returns ErrIntegrity rather
// than a silent wrong-plaintext result.
func Decrypt(blob Blob, key []byte) (string, error) {
	cipherText, err := base64.StdEncoding.DecodeString(blob.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext encoding", ErrIntegrity)
	}
	iv, err := base64.StdEncoding.DecodeString(blob.IV)
	if err != nil {
		return "", fmt.Errorf("%w: bad IV encoding", ErrIntegrity)
	}
	tag, err := base64.StdEncoding.DecodeString(blob.AuthTag)
	if err != nil {
		return "", fmt.Errorf("%w: bad auth tag encoding", ErrIntegrity)
	}
	plaintext, err := util.OpenAES(cipherText, iv, tag, key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	return string(plaintext), nil
}
