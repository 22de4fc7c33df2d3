package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/lumenhq/lumen/session"
)

type contextKey int

const (
	credentialsKey contextKey = iota
	sessionTokenKey
)

const (
	headerBridgeIP = "X-Bridge-IP"
	headerUsername = "X-Hue-Username"
	queryBridgeIP  = "bridgeIp"
	queryUsername  = "username"
)

// AuthMethod records which channel supplied the bridge credentials.
type AuthMethod string

const (
	AuthMethodSession AuthMethod = "session"
	AuthMethodHeader  AuthMethod = "header"
	AuthMethodQuery   AuthMethod = "query"
)

// Credentials is the resolved bridge identity placed on the request context.
type Credentials struct {
	BridgeIP string
	Username string
	Method   AuthMethod
	// Token is the raw session token when Method is AuthMethodSession.
	Token string
}

// CredentialsFromContext returns the credentials attached by RequireCredentials.
func CredentialsFromContext(ctx context.Context) (Credentials, bool) {
	creds, ok := ctx.Value(credentialsKey).(Credentials)
	return creds, ok
}

type claimKind int

const (
	claimNone claimKind = iota
	claimSession
	claimHeader
	claimQuery
)

// authClaim is the outcome of classifying a request's auth channels. Exactly
// one kind applies; for claimNone, missing names the parameter whose absence
// made classification fail.
type authClaim struct {
	kind     claimKind
	token    string
	bridgeIP string
	username string
	missing  string
}

// classifyAuth inspects a request and decides which credential channel it is
// using, without touching any store. Priority is strict: a Bearer token
// claims the session channel even when headers or query params are also
// present, so an invalid token can never fall back to a weaker channel.
func classifyAuth(r *http.Request) authClaim {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return authClaim{kind: claimSession, token: strings.TrimPrefix(auth, "Bearer ")}
	}

	hIP := r.Header.Get(headerBridgeIP)
	hUser := r.Header.Get(headerUsername)
	if hIP != "" && hUser != "" {
		return authClaim{kind: claimHeader, bridgeIP: hIP, username: hUser}
	}

	qIP := r.URL.Query().Get(queryBridgeIP)
	qUser := r.URL.Query().Get(queryUsername)
	if qIP != "" && qUser != "" {
		return authClaim{kind: claimQuery, bridgeIP: qIP, username: qUser}
	}

	// Name the half of a partially supplied pair, or the bridge IP when
	// nothing was sent at all.
	switch {
	case hIP != "":
		return authClaim{kind: claimNone, missing: headerUsername}
	case hUser != "":
		return authClaim{kind: claimNone, missing: headerBridgeIP}
	case qIP != "":
		return authClaim{kind: claimNone, missing: queryUsername}
	case qUser != "":
		return authClaim{kind: claimNone, missing: queryBridgeIP}
	default:
		return authClaim{kind: claimNone, missing: queryBridgeIP}
	}
}

// RequireCredentials resolves bridge credentials from one of three channels
// (session token, headers, query params) and attaches them to the request
// context. Session tokens are authoritative: if one is presented and does
// not resolve, the request fails even when other channels carry usable
// credentials.
func (a *API) RequireCredentials(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claim := classifyAuth(r)

		var creds Credentials
		switch claim.kind {
		case claimSession:
			sess, ok := a.sessions.Get(claim.token)
			if !ok {
				a.audit.logFailure(AuditSessionRejected, r, "invalid or expired session token")
				mapError(w, session.ErrInvalidSession)
				return
			}
			creds = Credentials{
				BridgeIP: sess.BridgeIP,
				Username: sess.Username,
				Method:   AuthMethodSession,
				Token:    claim.token,
			}
		case claimHeader:
			creds = Credentials{BridgeIP: claim.bridgeIP, Username: claim.username, Method: AuthMethodHeader}
		case claimQuery:
			creds = Credentials{BridgeIP: claim.bridgeIP, Username: claim.username, Method: AuthMethodQuery}
		case claimNone:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("missing %s parameter", claim.missing))
			return
		}

		// Remember the pairing so later session issuance for this bridge
		// can skip re-pairing.
		if !a.sessions.HasBridgeCredentials(creds.BridgeIP) {
			a.sessions.StoreBridgeCredentials(creds.BridgeIP, creds.Username)
		}

		ctx := context.WithValue(r.Context(), credentialsKey, creds)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSession accepts only a Bearer session token and attaches the raw
// token to the context. Used by endpoints that act on the session itself.
func (a *API) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")
		if _, ok := a.sessions.Get(token); !ok {
			a.audit.logFailure(AuditSessionRejected, r, "invalid or expired session token")
			mapError(w, session.ErrInvalidSession)
			return
		}
		ctx := context.WithValue(r.Context(), sessionTokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(sessionTokenKey).(string)
	return token
}
