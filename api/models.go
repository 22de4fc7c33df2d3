package api

// PairRequest is the JSON body for POST /auth/pair.
type PairRequest struct {
	BridgeIP string `json:"bridgeIp"`
	AppName  string `json:"appName,omitempty"`
}

// PairResponse is returned from POST /auth/pair.
type PairResponse struct {
	Username string `json:"username"`
}

// CreateSessionRequest is the JSON body for POST /auth/session.
type CreateSessionRequest struct {
	BridgeIP string `json:"bridgeIp"`
	Username string `json:"username"`
}

// CreateSessionResponse is returned from POST /auth/session. ExpiresIn is
// the session TTL in seconds.
type CreateSessionResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}

// HiveLoginRequest is the JSON body for POST /hive/login. With Remember set
// the credentials are persisted before the login attempt. With Username
// empty, previously stored credentials are used.
type HiveLoginRequest struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Remember bool   `json:"remember,omitempty"`
	Demo     bool   `json:"demo,omitempty"`
}

// HiveLoginResponse is returned from POST /hive/login.
type HiveLoginResponse struct {
	Requires2FA bool   `json:"requires2fa"`
	Session     string `json:"session,omitempty"`
	Destination string `json:"destination,omitempty"`
	// Token fields are set when the device fast path completed the login.
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	IDToken      string `json:"idToken,omitempty"`
}

// HiveVerifyRequest is the JSON body for POST /hive/verify.
type HiveVerifyRequest struct {
	Code     string `json:"code"`
	Session  string `json:"session"`
	Username string `json:"username"`
	Demo     bool   `json:"demo,omitempty"`
}

// HiveVerifyResponse is returned from POST /hive/verify.
type HiveVerifyResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	IDToken      string `json:"idToken"`
}

// HiveRefreshRequest is the JSON body for POST /hive/refresh.
type HiveRefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	Demo         bool   `json:"demo,omitempty"`
}

// HiveRefreshResponse is returned from POST /hive/refresh.
type HiveRefreshResponse struct {
	AccessToken string `json:"accessToken"`
	IDToken     string `json:"idToken"`
}

// HiveCredentialsRequest is the JSON body for POST /hive/credentials.
type HiveCredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HiveStatusResponse is returned from GET /hive/status.
type HiveStatusResponse struct {
	Configured    bool   `json:"configured"`
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
}

// AuditEntry is one persisted security event.
type AuditEntry struct {
	ID         string `json:"id"`
	Event      string `json:"event"`
	Detail     string `json:"detail,omitempty"`
	RemoteAddr string `json:"remoteAddr,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

// ListAuditResponse is returned from GET /auth/audit.
type ListAuditResponse struct {
	Events []AuditEntry `json:"events"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
