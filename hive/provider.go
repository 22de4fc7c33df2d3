// Package hive implements the multi-step login state machine for the Hive
// heating account: password auth, SMS second factor, and a registered-device
// fast path that skips the SMS step on subsequent logins.
package hive

import (
	"context"

	"github.com/lumenhq/lumen/secrets"
)

// Tokens is a completed authentication: the provider's access, refresh and
// identity tokens.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	IDToken      string
	// ExpiresIn is the access token lifetime in seconds, as reported by the
	// provider.
	ExpiresIn int
}

// Challenge is an in-progress 2FA step: an opaque provider-issued session
// plus the (masked) SMS destination for display.
type Challenge struct {
	Session     string
	Destination string
}

// PasswordAuthResult is the outcome of a password login: either a 2FA
// challenge to continue with, or tokens directly. Exactly one is non-nil.
type PasswordAuthResult struct {
	Challenge *Challenge
	Tokens    *Tokens
}

// IdentityProvider is the external identity service behind the login flow.
// Implementations: the real AWS Cognito client and the demo provider.
//
// All methods must respect ctx and return ErrProviderUnavailable-wrapped
// errors on connectivity failure rather than hanging.
type IdentityProvider interface {
	// PasswordAuth validates username/password. For this provider the
	// expected outcome is always an SMS challenge; a bare password login
	// never completes on its own.
	PasswordAuth(ctx context.Context, username, password string) (*PasswordAuthResult, error)

	// VerifySMSCode completes a challenge. On success it also registers this
	// installation as a trusted device and returns the resulting bundle so
	// later logins can skip the SMS step.
	VerifySMSCode(ctx context.Context, session, username, code string) (*Tokens, *secrets.DeviceCredentials, error)

	// DeviceAuth attempts the registered-device fast path. A stale or
	// invalid bundle returns ErrDeviceRejected so the caller can fall back
	// to PasswordAuth.
	DeviceAuth(ctx context.Context, username, password string, device secrets.DeviceCredentials) (*Tokens, error)

	// Refresh exchanges a refresh token for fresh access/id tokens. An
	// expired or malformed token returns ErrTokenExpired.
	Refresh(ctx context.Context, refreshToken, deviceKey string) (*Tokens, error)
}
