package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/lumenhq/lumen/internal/util"
)

// ErrValidation indicates malformed input to credential storage.
var ErrValidation = errors.New("validation failed")

var emailRE = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Credentials is the long-lived account secret for the heating provider.
type Credentials struct {
	Username string
	Password string
}

// DeviceCredentials is the registered-device bundle that lets subsequent
// provider logins skip the SMS step.
type DeviceCredentials struct {
	DeviceKey      string
	DeviceGroupKey string
	DevicePassword string
}

// record is the on-disk layout. The password (and device password) are
// stored only as AES-256-GCM blobs; the username is plaintext so it can be
// shown and logged without a decryption pass.
type record struct {
	Username          string `json:"username"`
	EncryptedPassword string `json:"encryptedPassword"`
	IV                string `json:"iv"`
	AuthTag           string `json:"authTag"`

	SessionToken     string `json:"sessionToken,omitempty"`
	SessionExpiresAt int64  `json:"sessionExpiresAt,omitempty"`

	DeviceKey               string `json:"deviceKey,omitempty"`
	DeviceGroupKey          string `json:"deviceGroupKey,omitempty"`
	EncryptedDevicePassword string `json:"encryptedDevicePassword,omitempty"`
	DeviceIV                string `json:"deviceIv,omitempty"`
	DeviceAuthTag           string `json:"deviceAuthTag,omitempty"`
}

// Store is the sole authority for the provider's persisted secrets. All
// mutations rewrite the backing file synchronously under the store mutex.
type Store struct {
	path   string
	key    []byte
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	rec      *record
	password *memguard.Enclave
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the structured logger used for load-time degradation
// warnings.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithClock overrides the time source, for token-expiry tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore opens (or initializes) the credential store at path. A missing,
// empty, corrupt or undecryptable file degrades to "no credentials" — it is
// logged, never fatal, so a damaged file cannot prevent startup.
func NewStore(path string, key []byte, opts ...StoreOption) (*Store, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	s := &Store{
		path: path,
		key:  key,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	s.load()
	return s, nil
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		s.logger.Warn("credential file unreadable, continuing without credentials",
			"path", s.path, "error", err)
		return
	}
	if len(data) == 0 {
		return
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("credential file corrupt, continuing without credentials",
			"path", s.path, "error", err)
		return
	}
	if rec.Username == "" || rec.EncryptedPassword == "" {
		s.logger.Warn("credential file incomplete, continuing without credentials",
			"path", s.path)
		return
	}

	password, err := Decrypt(Blob{
		Ciphertext: rec.EncryptedPassword,
		IV:         rec.IV,
		AuthTag:    rec.AuthTag,
	}, s.key)
	if err != nil {
		// Fail closed: undecryptable means no usable credentials.
		s.logger.Warn("stored password failed decryption, continuing without credentials",
			"path", s.path, "error", err)
		return
	}

	s.rec = &rec
	s.password = memguard.NewEnclave([]byte(password))
}

// StoreCredentials validates and persists a new username/password pair,
// replacing anything stored before. Any cached provider session token is
// invalidated: new credentials void trust in tokens minted under the old
// ones. Validation failure leaves existing state untouched.
func (s *Store) StoreCredentials(username, password string) error {
	if username == "" || !emailRE.MatchString(username) {
		return fmt.Errorf("%w: username must be an email address", ErrValidation)
	}
	if password == "" {
		return fmt.Errorf("%w: password must not be empty", ErrValidation)
	}

	blob, err := Encrypt(password, s.key)
	if err != nil {
		return fmt.Errorf("encrypting password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = &record{
		Username:          username,
		EncryptedPassword: blob.Ciphertext,
		IV:                blob.IV,
		AuthTag:           blob.AuthTag,
	}
	s.password = memguard.NewEnclave([]byte(password))
	return s.persistLocked()
}

// GetCredentials returns the stored username/password, or false if none.
func (s *Store) GetCredentials() (Credentials, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil || s.password == nil {
		return Credentials{}, false
	}
	buf, err := s.password.Open()
	if err != nil {
		return Credentials{}, false
	}
	defer buf.Destroy()
	// Destroy wipes and unmaps the protected region; the password must be
	// copied out before the buffer dies.
	password := string(util.CopyBytes(buf.Bytes()))
	return Credentials{
		Username: s.rec.Username,
		Password: password,
	}, true
}

// HasCredentials reports whether a usable credential pair is stored.
func (s *Store) HasCredentials() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec != nil && s.password != nil
}

// Username returns the stored account email without touching the enclave.
func (s *Store) Username() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return "", false
	}
	return s.rec.Username, true
}

// ClearCredentials wipes in-memory and on-disk state.
func (s *Store) ClearCredentials() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = nil
	s.password = nil
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing credential file: %w", err)
	}
	return nil
}

// SetSessionToken caches a provider session token with its expiry.
func (s *Store) SetSessionToken(token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		s.rec = &record{}
	}
	s.rec.SessionToken = token
	s.rec.SessionExpiresAt = expiresAt.UnixMilli()
	return s.persistLocked()
}

// GetSessionToken returns the cached token, self-clearing it once expired.
func (s *Store) GetSessionToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil || s.rec.SessionToken == "" {
		return "", false
	}
	if s.now().UnixMilli() >= s.rec.SessionExpiresAt {
		s.rec.SessionToken = ""
		s.rec.SessionExpiresAt = 0
		if err := s.persistLocked(); err != nil {
			s.logger.Warn("persisting expired-token removal failed", "error", err)
		}
		return "", false
	}
	return s.rec.SessionToken, true
}

// ClearSessionToken drops the cached provider session token.
func (s *Store) ClearSessionToken() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil || s.rec.SessionToken == "" {
		return nil
	}
	s.rec.SessionToken = ""
	s.rec.SessionExpiresAt = 0
	return s.persistLocked()
}

// SetDeviceCredentials persists the 2FA-bypass device bundle. The device
// password is encrypted with the same discipline as the account password.
func (s *Store) SetDeviceCredentials(creds DeviceCredentials) error {
	if creds.DeviceKey == "" || creds.DeviceGroupKey == "" || creds.DevicePassword == "" {
		return fmt.Errorf("%w: incomplete device credentials", ErrValidation)
	}
	blob, err := Encrypt(creds.DevicePassword, s.key)
	if err != nil {
		return fmt.Errorf("encrypting device password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		s.rec = &record{}
	}
	s.rec.DeviceKey = creds.DeviceKey
	s.rec.DeviceGroupKey = creds.DeviceGroupKey
	s.rec.EncryptedDevicePassword = blob.Ciphertext
	s.rec.DeviceIV = blob.IV
	s.rec.DeviceAuthTag = blob.AuthTag
	return s.persistLocked()
}

// GetDeviceCredentials returns the stored device bundle, or false if none
// is stored or it fails decryption.
func (s *Store) GetDeviceCredentials() (DeviceCredentials, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil || s.rec.DeviceKey == "" {
		return DeviceCredentials{}, false
	}
	password, err := Decrypt(Blob{
		Ciphertext: s.rec.EncryptedDevicePassword,
		IV:         s.rec.DeviceIV,
		AuthTag:    s.rec.DeviceAuthTag,
	}, s.key)
	if err != nil {
		s.logger.Warn("stored device password failed decryption, ignoring device credentials",
			"error", err)
		return DeviceCredentials{}, false
	}
	return DeviceCredentials{
		DeviceKey:      s.rec.DeviceKey,
		DeviceGroupKey: s.rec.DeviceGroupKey,
		DevicePassword: password,
	}, true
}

// ClearDeviceCredentials drops the device bundle.
func (s *Store) ClearDeviceCredentials() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil || s.rec.DeviceKey == "" {
		return nil
	}
	s.rec.DeviceKey = ""
	s.rec.DeviceGroupKey = ""
	s.rec.EncryptedDevicePassword = ""
	s.rec.DeviceIV = ""
	s.rec.DeviceAuthTag = ""
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	data, err := json.Marshal(s.rec)
	if err != nil {
		return fmt.Errorf("encoding credential file: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing credential file: %w", err)
	}
	return nil
}
