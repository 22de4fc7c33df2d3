package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/lumenhq/lumen/hive"
)

// HiveLogin handles POST /hive/login. With no username in the body the
// stored account is used; with Remember set the submitted credentials are
// persisted first, so the next restart can log in unattended.
func (a *API) HiveLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[HiveLoginRequest](w, r)
	if !ok {
		return
	}
	flow := a.flowFor(req.Demo)
	if flow == nil {
		writeError(w, http.StatusServiceUnavailable, "identity provider not configured")
		return
	}

	username, password := req.Username, req.Password
	if username == "" {
		var ok bool
		username, password, ok = flow.StoredCredentials()
		if !ok {
			mapError(w, hive.ErrNoCredentials)
			return
		}
	} else if req.Remember && !req.Demo {
		if err := a.hiveStore.StoreCredentials(username, password); err != nil {
			mapError(w, err)
			return
		}
		a.audit.log(AuditCredentialsStored, r, slog.String("username", username))
	}

	if blocked, retryAfter := a.rateLimiter.check(username); blocked {
		a.audit.log(AuditHiveLoginThrottled, r, slog.String("username", username))
		writeRateLimited(w, retryAfter)
		return
	}

	result, err := flow.InitiateAuth(r.Context(), username, password)
	if err != nil {
		if errors.Is(err, hive.ErrInvalidCredentials) {
			a.rateLimiter.recordFailure(username)
		}
		a.audit.logFailure(AuditHiveLoginFailure, r, err.Error(),
			slog.String("username", username))
		mapError(w, err)
		return
	}
	a.rateLimiter.recordSuccess(username)

	if result.Requires2FA {
		writeJSON(w, http.StatusOK, HiveLoginResponse{
			Requires2FA: true,
			Session:     result.Session,
			Destination: result.Destination,
		})
		return
	}

	a.audit.log(AuditHiveLoginSuccess, r,
		slog.String("username", username),
		slog.Bool("device_fast_path", result.UsedDevice))
	writeJSON(w, http.StatusOK, HiveLoginResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		IDToken:      result.Tokens.IDToken,
	})
}

// HiveVerify handles POST /hive/verify. A wrong code is an inline error and
// leaves the challenge session usable for another attempt.
func (a *API) HiveVerify(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[HiveVerifyRequest](w, r)
	if !ok {
		return
	}
	flow := a.flowFor(req.Demo)
	if flow == nil {
		writeError(w, http.StatusServiceUnavailable, "identity provider not configured")
		return
	}

	result, err := flow.Verify2FA(r.Context(), req.Code, req.Session, req.Username)
	if err != nil {
		a.audit.logFailure(AuditHive2FAFailure, r, err.Error(),
			slog.String("username", req.Username))
		mapError(w, err)
		return
	}

	a.audit.log(AuditHive2FASuccess, r,
		slog.String("username", req.Username),
		slog.Bool("device_registered", result.Device != nil))
	writeJSON(w, http.StatusOK, HiveVerifyResponse{
		Success:      true,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		IDToken:      result.Tokens.IDToken,
	})
}

// HiveRefresh handles POST /hive/refresh.
func (a *API) HiveRefresh(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[HiveRefreshRequest](w, r)
	if !ok {
		return
	}
	flow := a.flowFor(req.Demo)
	if flow == nil {
		writeError(w, http.StatusServiceUnavailable, "identity provider not configured")
		return
	}

	tokens, err := flow.RefreshTokens(r.Context(), req.RefreshToken)
	if err != nil {
		mapError(w, err)
		return
	}

	a.audit.log(AuditHiveTokenRefreshed, r)
	writeJSON(w, http.StatusOK, HiveRefreshResponse{
		AccessToken: tokens.AccessToken,
		IDToken:     tokens.IDToken,
	})
}

// HiveLogout handles POST /hive/logout. Cached tokens are discarded; stored
// account credentials survive so the next login needs no re-entry.
func (a *API) HiveLogout(w http.ResponseWriter, r *http.Request) {
	for _, flow := range []*hive.Flow{a.hiveFlow, a.demoFlow} {
		if flow == nil {
			continue
		}
		if err := flow.ClearAuth(); err != nil {
			mapError(w, err)
			return
		}
	}
	a.audit.log(AuditHiveLogout, r)
	w.WriteHeader(http.StatusNoContent)
}

// HiveStatus handles GET /hive/status.
func (a *API) HiveStatus(w http.ResponseWriter, r *http.Request) {
	resp := HiveStatusResponse{
		Configured: a.hiveStore.HasCredentials(),
	}
	if username, ok := a.hiveStore.Username(); ok {
		resp.Username = username
	}
	if a.hiveFlow != nil {
		_, resp.Authenticated = a.hiveFlow.CachedToken()
	}
	writeJSON(w, http.StatusOK, resp)
}

// StoreHiveCredentials handles POST /hive/credentials.
func (a *API) StoreHiveCredentials(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[HiveCredentialsRequest](w, r)
	if !ok {
		return
	}
	if err := a.hiveStore.StoreCredentials(req.Username, req.Password); err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(AuditCredentialsStored, r, slog.String("username", req.Username))
	w.WriteHeader(http.StatusNoContent)
}

// ClearHiveCredentials handles DELETE /hive/credentials.
func (a *API) ClearHiveCredentials(w http.ResponseWriter, r *http.Request) {
	if err := a.hiveStore.ClearCredentials(); err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(AuditCredentialsCleared, r)
	w.WriteHeader(http.StatusNoContent)
}
