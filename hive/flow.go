package hive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lumenhq/lumen/secrets"
)

var codeRE = regexp.MustCompile(`^\d{6}$`)

// AuthResult is the outcome of InitiateAuth: either a 2FA challenge the
// caller must complete, or tokens directly via the device fast path.
type AuthResult struct {
	Requires2FA bool
	Session     string
	Destination string
	Tokens      *Tokens
	// UsedDevice reports whether the device fast path satisfied the login.
	UsedDevice bool
}

// VerifyResult is the outcome of a successful Verify2FA: tokens plus the
// freshly registered device bundle for future fast-path logins.
type VerifyResult struct {
	Tokens Tokens
	Device *secrets.DeviceCredentials
}

// Flow drives the login state machine
// (unauthenticated -> awaiting_2fa -> authenticated, with a direct
// device fast path) and persists its durable outputs through the
// credential store.
type Flow struct {
	store    *secrets.Store
	provider IdentityProvider
	logger   *slog.Logger
	now      func() time.Time
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithFlowLogger sets the structured logger.
func WithFlowLogger(logger *slog.Logger) FlowOption {
	return func(f *Flow) { f.logger = logger }
}

// WithFlowClock overrides the time source.
func WithFlowClock(now func() time.Time) FlowOption {
	return func(f *Flow) { f.now = now }
}

// NewFlow creates a login flow backed by the given credential store and
// identity provider.
func NewFlow(store *secrets.Store, provider IdentityProvider, opts ...FlowOption) *Flow {
	f := &Flow{
		store:    store,
		provider: provider,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return f
}

// InitiateAuth starts a login. With a registered device bundle on file the
// device fast path is tried first; a rejected bundle falls back to the
// standard password+SMS path instead of failing the login.
func (f *Flow) InitiateAuth(ctx context.Context, username, password string) (*AuthResult, error) {
	if device, ok := f.store.GetDeviceCredentials(); ok {
		tokens, err := f.provider.DeviceAuth(ctx, username, password, device)
		switch {
		case err == nil:
			f.persistTokens(tokens)
			f.logger.Info("device fast-path login succeeded", "username", username)
			return &AuthResult{Tokens: tokens, UsedDevice: true}, nil
		case errors.Is(err, ErrDeviceRejected):
			// Stale bundle: drop it so a fresh one is registered on the next
			// completed 2FA, and continue with the standard path.
			f.logger.Warn("device credentials rejected, falling back to standard login",
				"username", username)
			if clearErr := f.store.ClearDeviceCredentials(); clearErr != nil {
				f.logger.Warn("clearing rejected device credentials failed", "error", clearErr)
			}
		default:
			return nil, err
		}
	}

	result, err := f.provider.PasswordAuth(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if result.Tokens != nil {
		// Not expected from this provider (it mandates SMS 2FA on every
		// fresh login), but honor it if it ever happens.
		f.persistTokens(result.Tokens)
		return &AuthResult{Tokens: result.Tokens}, nil
	}
	if result.Challenge == nil {
		return nil, fmt.Errorf("provider returned neither tokens nor a challenge")
	}
	return &AuthResult{
		Requires2FA: true,
		Session:     result.Challenge.Session,
		Destination: result.Challenge.Destination,
	}, nil
}

// Verify2FA completes a pending challenge. A wrong code leaves the
// challenge session usable so the user can retry; an absent or expired
// session fails with ErrChallengeExpired regardless of code correctness.
func (f *Flow) Verify2FA(ctx context.Context, code, session, username string) (*VerifyResult, error) {
	if session == "" {
		return nil, ErrChallengeExpired
	}
	if !codeRE.MatchString(code) {
		return nil, fmt.Errorf("%w: code must be 6 digits", ErrInvalidCode)
	}

	tokens, device, err := f.provider.VerifySMSCode(ctx, session, username, code)
	if err != nil {
		return nil, err
	}

	f.persistTokens(tokens)
	if device != nil {
		if err := f.store.SetDeviceCredentials(*device); err != nil {
			// The login itself succeeded; a failed device registration only
			// costs an SMS round on the next login.
			f.logger.Warn("persisting device credentials failed", "error", err)
		}
	}
	f.logger.Info("2fa verification succeeded", "username", username)
	return &VerifyResult{Tokens: *tokens, Device: device}, nil
}

// RefreshTokens exchanges a refresh token for fresh access/id tokens. The
// stored device key, if any, accompanies the request.
func (f *Flow) RefreshTokens(ctx context.Context, refreshToken string) (*Tokens, error) {
	if refreshToken == "" {
		return nil, ErrTokenExpired
	}
	deviceKey := ""
	if device, ok := f.store.GetDeviceCredentials(); ok {
		deviceKey = device.DeviceKey
	}
	tokens, err := f.provider.Refresh(ctx, refreshToken, deviceKey)
	if err != nil {
		return nil, err
	}
	f.persistTokens(tokens)
	return tokens, nil
}

// ClearAuth drops the cached provider session token and device
// credentials. Used on explicit logout.
func (f *Flow) ClearAuth() error {
	if err := f.store.ClearSessionToken(); err != nil {
		return err
	}
	return f.store.ClearDeviceCredentials()
}

// CachedToken returns the provider session token cached from a previous
// login, if it has not expired.
func (f *Flow) CachedToken() (string, bool) {
	return f.store.GetSessionToken()
}

// StoredCredentials returns the account on file in this flow's credential
// store, for logins that omit the username. Each flow answers from its own
// store, so a demo flow never sees a real account's credentials.
func (f *Flow) StoredCredentials() (username, password string, ok bool) {
	creds, ok := f.store.GetCredentials()
	if !ok {
		return "", "", false
	}
	return creds.Username, creds.Password, true
}

// persistTokens caches the access token with its expiry. JWT exp wins when
// the token carries one; otherwise the provider-reported lifetime applies.
func (f *Flow) persistTokens(tokens *Tokens) {
	expiresAt := f.tokenExpiry(tokens)
	if err := f.store.SetSessionToken(tokens.AccessToken, expiresAt); err != nil {
		f.logger.Warn("caching provider session token failed", "error", err)
	}
}

func (f *Flow) tokenExpiry(tokens *Tokens) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokens.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	lifetime := time.Duration(tokens.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	return f.now().Add(lifetime)
}
