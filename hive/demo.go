package hive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lumenhq/lumen/internal/util"
	"github.com/lumenhq/lumen/secrets"
)

// Demo account and fixtures. The demo provider exists so the UI can be
// exercised end to end without a real Hive account or any network access;
// the accepted SMS code is fixed.
const (
	DemoUsername = "demo@hive.com"
	DemoPassword = "demo"
	DemoSMSCode  = "123456"

	demoAccessToken  = "demo-access-token"
	demoRefreshToken = "demo-refresh-token"
	demoIDToken      = "demo-id-token"

	demoChallengeTTL = 3 * time.Minute
)

// DemoProvider is an in-memory IdentityProvider with one fixed account.
type DemoProvider struct {
	mu         sync.Mutex
	challenges map[string]time.Time
	device     *secrets.DeviceCredentials
	now        func() time.Time
}

var _ IdentityProvider = (*DemoProvider)(nil)

// DemoProviderOption configures a DemoProvider.
type DemoProviderOption func(*DemoProvider)

// WithDemoClock overrides the time source for challenge-expiry tests.
func WithDemoClock(now func() time.Time) DemoProviderOption {
	return func(p *DemoProvider) { p.now = now }
}

func NewDemoProvider(opts ...DemoProviderOption) *DemoProvider {
	p := &DemoProvider{
		challenges: make(map[string]time.Time),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *DemoProvider) PasswordAuth(_ context.Context, username, password string) (*PasswordAuthResult, error) {
	if username != DemoUsername || password != DemoPassword {
		return nil, ErrInvalidCredentials
	}

	session, err := util.RandomToken("demo-challenge-", 16)
	if err != nil {
		return nil, fmt.Errorf("generating challenge session: %w", err)
	}
	p.mu.Lock()
	p.challenges[session] = p.now().Add(demoChallengeTTL)
	p.mu.Unlock()

	return &PasswordAuthResult{
		Challenge: &Challenge{
			Session:     session,
			Destination: "+*******0000",
		},
	}, nil
}

func (p *DemoProvider) VerifySMSCode(_ context.Context, session, username, code string) (*Tokens, *secrets.DeviceCredentials, error) {
	p.mu.Lock()
	expiry, ok := p.challenges[session]
	if ok && !p.now().Before(expiry) {
		delete(p.challenges, session)
		ok = false
	}
	p.mu.Unlock()
	if !ok {
		return nil, nil, ErrChallengeExpired
	}

	// A wrong code leaves the challenge in place: the user retries against
	// the same session until it expires on its own.
	if code != DemoSMSCode {
		return nil, nil, ErrInvalidCode
	}

	p.mu.Lock()
	delete(p.challenges, session)
	p.mu.Unlock()

	devicePassword, err := randomDevicePassword()
	if err != nil {
		return nil, nil, err
	}
	device := &secrets.DeviceCredentials{
		DeviceKey:      "demo-device-key",
		DeviceGroupKey: "demo-device-group",
		DevicePassword: devicePassword,
	}
	p.mu.Lock()
	p.device = device
	p.mu.Unlock()

	return p.tokens(), device, nil
}

func (p *DemoProvider) DeviceAuth(_ context.Context, username, password string, device secrets.DeviceCredentials) (*Tokens, error) {
	if username != DemoUsername || password != DemoPassword {
		return nil, ErrInvalidCredentials
	}

	p.mu.Lock()
	registered := p.device
	p.mu.Unlock()
	if registered == nil ||
		device.DeviceKey != registered.DeviceKey ||
		device.DevicePassword != registered.DevicePassword {
		return nil, ErrDeviceRejected
	}
	return p.tokens(), nil
}

func (p *DemoProvider) Refresh(_ context.Context, refreshToken, _ string) (*Tokens, error) {
	if refreshToken != demoRefreshToken {
		return nil, ErrTokenExpired
	}
	return p.tokens(), nil
}

func (p *DemoProvider) tokens() *Tokens {
	return &Tokens{
		AccessToken:  demoAccessToken,
		RefreshToken: demoRefreshToken,
		IDToken:      demoIDToken,
		ExpiresIn:    3600,
	}
}
