// Package session issues, validates and expires the short-lived opaque
// tokens that stand in for long-lived bridge credentials.
package session

import "time"

// Session maps an opaque token to the bridge credentials it stands in for.
type Session struct {
	BridgeIP  string
	Username  string
	CreatedAt time.Time
}

// Store abstracts session CRUD so the sweep strategy and backing storage
// are swappable. Implementations must be safe for concurrent use.
type Store interface {
	// Get retrieves a session by token. The boolean is false for unknown
	// tokens; expiry is the Manager's concern, not the store's.
	Get(token string) (Session, bool)
	// Put creates or replaces the session for the given token.
	Put(token string, s Session)
	// Delete removes a session by token. Deleting an absent token is a no-op.
	Delete(token string)
	// Tokens returns a snapshot of all stored tokens, for sweeping.
	Tokens() []string
}
