package hive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ciptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"github.com/lumenhq/lumen/secrets"
)

const (
	cognitoTimeout = 15 * time.Second
	deviceName     = "lumen-panel"
)

// CognitoConfig identifies the provider's user pool. The pool requires SMS
// MFA on every fresh password login; the device fast path is the only way
// around it, mirroring the vendor's own app.
type CognitoConfig struct {
	Region     string
	UserPoolID string
	ClientID   string
}

// CognitoProvider is the real IdentityProvider: SRP password auth, SMS MFA,
// trusted-device registration and device SRP auth against AWS Cognito.
type CognitoProvider struct {
	client   *cip.Client
	clientID string
	poolName string
}

var _ IdentityProvider = (*CognitoProvider)(nil)

// NewCognitoProvider builds a provider client. Cognito's public auth flows
// are unauthenticated at the AWS level, so anonymous SDK credentials are
// used; every call carries a bounded timeout.
func NewCognitoProvider(cfg CognitoConfig) (*CognitoProvider, error) {
	if cfg.Region == "" || cfg.UserPoolID == "" || cfg.ClientID == "" {
		return nil, fmt.Errorf("region, user pool id and client id are required")
	}
	_, poolName, ok := strings.Cut(cfg.UserPoolID, "_")
	if !ok {
		return nil, fmt.Errorf("user pool id %q missing region prefix", cfg.UserPoolID)
	}

	client := cip.New(cip.Options{
		Region:      cfg.Region,
		Credentials: aws.AnonymousCredentials{},
		HTTPClient:  &http.Client{Timeout: cognitoTimeout},
	})
	return &CognitoProvider{
		client:   client,
		clientID: cfg.ClientID,
		poolName: poolName,
	}, nil
}

func (p *CognitoProvider) PasswordAuth(ctx context.Context, username, password string) (*PasswordAuthResult, error) {
	out, err := p.srpAuth(ctx, username, password, "")
	if err != nil {
		return nil, err
	}

	switch {
	case out.ChallengeName == ciptypes.ChallengeNameTypeSmsMfa:
		return &PasswordAuthResult{
			Challenge: &Challenge{
				Session:     aws.ToString(out.Session),
				Destination: out.ChallengeParameters["CODE_DELIVERY_DESTINATION"],
			},
		}, nil
	case out.AuthenticationResult != nil:
		return &PasswordAuthResult{Tokens: tokensFromResult(out.AuthenticationResult)}, nil
	default:
		return nil, fmt.Errorf("unexpected auth challenge %q", out.ChallengeName)
	}
}

func (p *CognitoProvider) VerifySMSCode(ctx context.Context, session, username, code string) (*Tokens, *secrets.DeviceCredentials, error) {
	out, err := p.client.RespondToAuthChallenge(ctx, &cip.RespondToAuthChallengeInput{
		ChallengeName: ciptypes.ChallengeNameTypeSmsMfa,
		ClientId:      aws.String(p.clientID),
		Session:       aws.String(session),
		ChallengeResponses: map[string]string{
			"USERNAME":     username,
			"SMS_MFA_CODE": code,
		},
	})
	if err != nil {
		return nil, nil, classifyVerifyError(err)
	}
	if out.AuthenticationResult == nil {
		return nil, nil, fmt.Errorf("verification returned no authentication result")
	}

	tokens := tokensFromResult(out.AuthenticationResult)
	device, err := p.confirmDevice(ctx, out.AuthenticationResult)
	if err != nil {
		// The login stands; device registration is an optimization for the
		// next one.
		return tokens, nil, nil
	}
	return tokens, device, nil
}

func (p *CognitoProvider) DeviceAuth(ctx context.Context, username, password string, device secrets.DeviceCredentials) (*Tokens, error) {
	out, err := p.srpAuth(ctx, username, password, device.DeviceKey)
	if err != nil {
		return nil, err
	}
	if out.ChallengeName != ciptypes.ChallengeNameTypeDeviceSrpAuth {
		if out.AuthenticationResult != nil {
			return tokensFromResult(out.AuthenticationResult), nil
		}
		// The pool no longer trusts this device.
		return nil, fmt.Errorf("%w: expected device challenge, got %q", ErrDeviceRejected, out.ChallengeName)
	}

	srp, err := newSRPClient()
	if err != nil {
		return nil, err
	}
	challenge, err := p.client.RespondToAuthChallenge(ctx, &cip.RespondToAuthChallengeInput{
		ChallengeName: ciptypes.ChallengeNameTypeDeviceSrpAuth,
		ClientId:      aws.String(p.clientID),
		Session:       out.Session,
		ChallengeResponses: map[string]string{
			"USERNAME":   username,
			"DEVICE_KEY": device.DeviceKey,
			"SRP_A":      srp.A(),
		},
	})
	if err != nil {
		return nil, classifyDeviceError(err)
	}

	ts := time.Now()
	signature, err := srp.passwordClaim(
		device.DeviceGroupKey,
		device.DeviceKey,
		device.DevicePassword,
		challenge.ChallengeParameters["SALT"],
		challenge.ChallengeParameters["SRP_B"],
		challenge.ChallengeParameters["SECRET_BLOCK"],
		ts,
	)
	if err != nil {
		return nil, err
	}

	final, err := p.client.RespondToAuthChallenge(ctx, &cip.RespondToAuthChallengeInput{
		ChallengeName: ciptypes.ChallengeNameTypeDevicePasswordVerifier,
		ClientId:      aws.String(p.clientID),
		Session:       challenge.Session,
		ChallengeResponses: map[string]string{
			"USERNAME":                    challenge.ChallengeParameters["USERNAME"],
			"DEVICE_KEY":                  device.DeviceKey,
			"PASSWORD_CLAIM_SECRET_BLOCK": challenge.ChallengeParameters["SECRET_BLOCK"],
			"PASSWORD_CLAIM_SIGNATURE":    signature,
			"TIMESTAMP":                   srpTimestamp(ts),
		},
	})
	if err != nil {
		return nil, classifyDeviceError(err)
	}
	if final.AuthenticationResult == nil {
		return nil, fmt.Errorf("%w: device verification returned no result", ErrDeviceRejected)
	}
	return tokensFromResult(final.AuthenticationResult), nil
}

func (p *CognitoProvider) Refresh(ctx context.Context, refreshToken, deviceKey string) (*Tokens, error) {
	params := map[string]string{"REFRESH_TOKEN": refreshToken}
	if deviceKey != "" {
		params["DEVICE_KEY"] = deviceKey
	}
	out, err := p.client.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       ciptypes.AuthFlowTypeRefreshTokenAuth,
		ClientId:       aws.String(p.clientID),
		AuthParameters: params,
	})
	if err != nil {
		var notAuth *ciptypes.NotAuthorizedException
		if errors.As(err, &notAuth) {
			return nil, fmt.Errorf("%w: %s", ErrTokenExpired, aws.ToString(notAuth.Message))
		}
		return nil, classifyTransportError(err)
	}
	if out.AuthenticationResult == nil {
		return nil, ErrTokenExpired
	}
	tokens := tokensFromResult(out.AuthenticationResult)
	// Refresh responses omit the refresh token; the caller keeps the one it
	// already holds.
	tokens.RefreshToken = refreshToken
	return tokens, nil
}

// srpAuth runs USER_SRP_AUTH through the PASSWORD_VERIFIER response and
// returns the provider's next move (SMS challenge, device challenge, or
// tokens).
func (p *CognitoProvider) srpAuth(ctx context.Context, username, password, deviceKey string) (*cip.RespondToAuthChallengeOutput, error) {
	srp, err := newSRPClient()
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		"USERNAME": username,
		"SRP_A":    srp.A(),
	}
	if deviceKey != "" {
		params["DEVICE_KEY"] = deviceKey
	}

	initOut, err := p.client.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       ciptypes.AuthFlowTypeUserSrpAuth,
		ClientId:       aws.String(p.clientID),
		AuthParameters: params,
	})
	if err != nil {
		return nil, classifyAuthError(err)
	}
	if initOut.ChallengeName != ciptypes.ChallengeNameTypePasswordVerifier {
		return nil, fmt.Errorf("unexpected initial challenge %q", initOut.ChallengeName)
	}

	cp := initOut.ChallengeParameters
	userID := cp["USER_ID_FOR_SRP"]
	ts := time.Now()
	signature, err := srp.passwordClaim(
		p.poolName, userID, password,
		cp["SALT"], cp["SRP_B"], cp["SECRET_BLOCK"], ts,
	)
	if err != nil {
		return nil, err
	}

	responses := map[string]string{
		"USERNAME":                    userID,
		"PASSWORD_CLAIM_SECRET_BLOCK": cp["SECRET_BLOCK"],
		"PASSWORD_CLAIM_SIGNATURE":    signature,
		"TIMESTAMP":                   srpTimestamp(ts),
	}
	if deviceKey != "" {
		responses["DEVICE_KEY"] = deviceKey
	}

	out, err := p.client.RespondToAuthChallenge(ctx, &cip.RespondToAuthChallengeInput{
		ChallengeName:      ciptypes.ChallengeNameTypePasswordVerifier,
		ClientId:           aws.String(p.clientID),
		Session:            initOut.Session,
		ChallengeResponses: responses,
	})
	if err != nil {
		return nil, classifyAuthError(err)
	}
	return out, nil
}

// confirmDevice registers this installation as a trusted device using the
// metadata issued with a fresh login, and marks it remembered so future
// logins can take the fast path.
func (p *CognitoProvider) confirmDevice(ctx context.Context, result *ciptypes.AuthenticationResultType) (*secrets.DeviceCredentials, error) {
	meta := result.NewDeviceMetadata
	if meta == nil {
		return nil, fmt.Errorf("no device metadata issued")
	}

	devicePassword, err := randomDevicePassword()
	if err != nil {
		return nil, err
	}
	salt, verifier, err := deviceVerifier(
		aws.ToString(meta.DeviceGroupKey),
		aws.ToString(meta.DeviceKey),
		devicePassword,
	)
	if err != nil {
		return nil, err
	}

	_, err = p.client.ConfirmDevice(ctx, &cip.ConfirmDeviceInput{
		AccessToken: result.AccessToken,
		DeviceKey:   meta.DeviceKey,
		DeviceName:  aws.String(deviceName),
		DeviceSecretVerifierConfig: &ciptypes.DeviceSecretVerifierConfigType{
			PasswordVerifier: aws.String(verifier),
			Salt:             aws.String(salt),
		},
	})
	if err != nil {
		return nil, classifyTransportError(err)
	}

	_, err = p.client.UpdateDeviceStatus(ctx, &cip.UpdateDeviceStatusInput{
		AccessToken:            result.AccessToken,
		DeviceKey:              meta.DeviceKey,
		DeviceRememberedStatus: ciptypes.DeviceRememberedStatusTypeRemembered,
	})
	if err != nil {
		return nil, classifyTransportError(err)
	}

	return &secrets.DeviceCredentials{
		DeviceKey:      aws.ToString(meta.DeviceKey),
		DeviceGroupKey: aws.ToString(meta.DeviceGroupKey),
		DevicePassword: devicePassword,
	}, nil
}

func tokensFromResult(result *ciptypes.AuthenticationResultType) *Tokens {
	return &Tokens{
		AccessToken:  aws.ToString(result.AccessToken),
		RefreshToken: aws.ToString(result.RefreshToken),
		IDToken:      aws.ToString(result.IdToken),
		ExpiresIn:    int(result.ExpiresIn),
	}
}

// classifyAuthError maps provider errors from the password path.
func classifyAuthError(err error) error {
	var (
		notAuth      *ciptypes.NotAuthorizedException
		userNotFound *ciptypes.UserNotFoundException
		tooMany      *ciptypes.TooManyRequestsException
	)
	switch {
	case errors.As(err, &notAuth), errors.As(err, &userNotFound):
		return ErrInvalidCredentials
	case errors.As(err, &tooMany):
		return fmt.Errorf("%w: %s", ErrRateLimited, aws.ToString(tooMany.Message))
	default:
		return classifyTransportError(err)
	}
}

// classifyVerifyError maps provider errors from the SMS-code step.
func classifyVerifyError(err error) error {
	var (
		mismatch *ciptypes.CodeMismatchException
		expired  *ciptypes.ExpiredCodeException
		notAuth  *ciptypes.NotAuthorizedException
		tooMany  *ciptypes.TooManyRequestsException
	)
	switch {
	case errors.As(err, &mismatch):
		return ErrInvalidCode
	case errors.As(err, &expired), errors.As(err, &notAuth):
		return ErrChallengeExpired
	case errors.As(err, &tooMany):
		return fmt.Errorf("%w: %s", ErrRateLimited, aws.ToString(tooMany.Message))
	default:
		return classifyTransportError(err)
	}
}

// classifyDeviceError maps provider errors from the device fast path onto
// the fall-back-to-2FA signal.
func classifyDeviceError(err error) error {
	var (
		notAuth  *ciptypes.NotAuthorizedException
		notFound *ciptypes.ResourceNotFoundException
	)
	if errors.As(err, &notAuth) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ErrDeviceRejected, err)
	}
	return classifyTransportError(err)
}

// classifyTransportError treats anything that is not a recognized provider
// response as connectivity failure.
func classifyTransportError(err error) error {
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}
