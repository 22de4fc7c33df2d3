package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lumenhq/lumen/internal/util"
)

const (
	// TTL is the fixed session lifetime. Lazy expiry on read and the
	// background sweep both use this constant; an expired-but-unswept token
	// must never validate.
	TTL = 24 * time.Hour

	// SweepInterval bounds memory growth from abandoned sessions. The sweep
	// is advisory cleanup; correctness comes from the read-time check.
	SweepInterval = time.Hour

	tokenPrefix   = "sess_"
	tokenByteLen  = 32
)

// ErrInvalidSession covers both unknown and expired tokens. Callers cannot
// distinguish the two, which avoids leaking token-enumeration information.
var ErrInvalidSession = errors.New("invalid or expired session")

// Clock abstracts time for TTL tests.
type Clock func() time.Time

// Manager is the authority for browser session tokens, plus a small
// keyed-by-bridge cache of the last-known username per bridge.
type Manager struct {
	store Store
	now   Clock

	mu      sync.RWMutex
	bridges map[string]string // bridgeIP -> username

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithStore replaces the default in-memory store.
func WithStore(store Store) Option {
	return func(m *Manager) { m.store = store }
}

// WithClock overrides the time source.
func WithClock(now Clock) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session manager. Call StartSweeper to enable the
// periodic background sweep, and Close to stop it.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		now:     time.Now,
		bridges: make(map[string]string),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.store == nil {
		m.store = NewMemoryStore()
	}
	return m
}

// Create issues a fresh opaque token for the given bridge credentials and
// returns it with the TTL in seconds. Every call mints an independent,
// independently revocable token, even for a bridge/username pair that
// already has live sessions.
func (m *Manager) Create(bridgeIP, username string) (token string, expiresIn int, err error) {
	if bridgeIP == "" || username == "" {
		return "", 0, fmt.Errorf("bridgeIP and username are required")
	}
	token, err = util.RandomToken(tokenPrefix, tokenByteLen)
	if err != nil {
		return "", 0, fmt.Errorf("generating session token: %w", err)
	}
	m.store.Put(token, Session{
		BridgeIP:  bridgeIP,
		Username:  username,
		CreatedAt: m.now(),
	})
	m.StoreBridgeCredentials(bridgeIP, username)
	return token, int(TTL / time.Second), nil
}

// Get resolves a token to its session. Expired tokens are removed on read
// and reported identically to unknown ones.
func (m *Manager) Get(token string) (Session, bool) {
	sess, ok := m.store.Get(token)
	if !ok {
		return Session{}, false
	}
	if !m.now().Before(sess.CreatedAt.Add(TTL)) {
		m.store.Delete(token)
		return Session{}, false
	}
	return sess, true
}

// Revoke removes a session immediately. Idempotent: revoking an unknown or
// already-revoked token is not an error.
func (m *Manager) Revoke(token string) {
	m.store.Delete(token)
}

// HasBridgeCredentials reports whether a username is already cached for the
// bridge. Purely an optimization so repeated authentications on the same
// bridge skip redundant writes.
func (m *Manager) HasBridgeCredentials(bridgeIP string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.bridges[bridgeIP]
	return ok
}

// StoreBridgeCredentials upserts the last-known username for a bridge.
// Last write wins; concurrent writers for the same pair are idempotent.
func (m *Manager) StoreBridgeCredentials(bridgeIP, username string) {
	m.mu.Lock()
	m.bridges[bridgeIP] = username
	m.mu.Unlock()
}

// BridgeCredentials returns the cached username for a bridge, if any.
func (m *Manager) BridgeCredentials(bridgeIP string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.bridges[bridgeIP]
	return u, ok
}

// RevokeAll clears every session and the bridge-credential cache.
func (m *Manager) RevokeAll() {
	for _, token := range m.store.Tokens() {
		m.store.Delete(token)
	}
	m.mu.Lock()
	m.bridges = make(map[string]string)
	m.mu.Unlock()
}

// StartSweeper launches the hourly background sweep.
func (m *Manager) StartSweeper() {
	go func() {
		ticker := time.NewTicker(SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Sweep()
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Sweep removes all expired sessions.
func (m *Manager) Sweep() {
	now := m.now()
	for _, token := range m.store.Tokens() {
		sess, ok := m.store.Get(token)
		if !ok {
			continue
		}
		if !now.Before(sess.CreatedAt.Add(TTL)) {
			m.store.Delete(token)
		}
	}
}

// Close stops the background sweeper.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}
