package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// DefaultKeyEnvVar names the environment variable checked first when
// resolving the encryption key. When set, no key file is read or written.
const DefaultKeyEnvVar = "LUMEN_ENCRYPTION_KEY"

// ErrNoKey is returned by a KeySource that has nothing to offer; the
// keychain then moves on to the next source.
var ErrNoKey = errors.New("no key available")

// KeySource yields an encryption key string, or ErrNoKey to defer to the
// next source in the chain. Any other error aborts resolution.
type KeySource func() (string, error)

// EnvKey resolves the key from an environment variable.
func EnvKey(name string) KeySource {
	return func() (string, error) {
		v := strings.TrimSpace(os.Getenv(name))
		if v == "" {
			return "", ErrNoKey
		}
		return v, nil
	}
}

// FileKey resolves the key from a file holding the raw hex string.
func FileKey(path string) KeySource {
	return func() (string, error) {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoKey
		}
		if err != nil {
			return "", fmt.Errorf("reading key file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
}

// GeneratedKey generates a fresh key and persists it to path (mode 0600).
// Once the file exists it is authoritative: losing it permanently
// invalidates everything encrypted under it. There is no recovery path.
func GeneratedKey(path string) KeySource {
	return func() (string, error) {
		key, err := GenerateKey()
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(path, []byte(key+"\n"), 0o600); err != nil {
			return "", fmt.Errorf("persisting key file: %w", err)
		}
		return key, nil
	}
}

// Keychain resolves the process encryption key through an ordered chain of
// sources and caches the result for the process lifetime.
type Keychain struct {
	mu      sync.Mutex
	sources []KeySource
	cached  []byte
}

// NewKeychain builds a keychain from explicit sources, tried in order.
func NewKeychain(sources ...KeySource) *Keychain {
	return &Keychain{sources: sources}
}

// DefaultKeychain is the standard resolution order: environment variable,
// then key file under the data directory, then generate-and-persist.
func DefaultKeychain(keyPath string) *Keychain {
	return NewKeychain(
		EnvKey(DefaultKeyEnvVar),
		FileKey(keyPath),
		GeneratedKey(keyPath),
	)
}

// Key returns the resolved 32-byte key, resolving on first use.
func (k *Keychain) Key() ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.cached != nil {
		return k.cached, nil
	}
	for _, src := range k.sources {
		s, err := src()
		if errors.Is(err, ErrNoKey) {
			continue
		}
		if err != nil {
			return nil, err
		}
		raw, err := ParseKey(s)
		if err != nil {
			return nil, err
		}
		k.cached = raw
		return k.cached, nil
	}
	return nil, errors.New("no encryption key source produced a key")
}
