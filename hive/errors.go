package hive

import "errors"

// Expected, user-correctable outcomes are sentinel errors so route handlers
// can render them inline; only genuinely unexpected conditions surface as
// wrapped internal errors.
var (
	// ErrInvalidCredentials indicates a wrong username or password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidCode indicates an SMS code that failed format validation or
	// provider verification. The challenge session stays usable for a retry.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrChallengeExpired indicates the 2FA challenge session is absent or
	// no longer accepted by the provider.
	ErrChallengeExpired = errors.New("challenge session expired")
	// ErrTokenExpired indicates an expired or malformed refresh token.
	ErrTokenExpired = errors.New("refresh token expired")
	// ErrProviderUnavailable indicates the identity provider is unreachable
	// or timing out. Retryable by the caller.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
	// ErrDeviceRejected signals that stored device credentials were refused
	// and the caller should fall back to the standard 2FA path.
	ErrDeviceRejected = errors.New("device credentials rejected")
	// ErrRateLimited indicates the provider is throttling login attempts.
	ErrRateLimited = errors.New("too many attempts")
	// ErrNoCredentials indicates no account credentials are stored.
	ErrNoCredentials = errors.New("no credentials stored")
)
