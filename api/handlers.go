package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Pair handles POST /auth/pair. The bridge's link button must have been
// pressed within the last 30 seconds.
func (a *API) Pair(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[PairRequest](w, r)
	if !ok {
		return
	}
	if req.BridgeIP == "" {
		writeError(w, http.StatusBadRequest, "missing bridgeIp parameter")
		return
	}
	appName := req.AppName
	if appName == "" {
		appName = a.appName
	}

	username, err := a.bridge.Pair(r.Context(), req.BridgeIP, appName)
	if err != nil {
		a.audit.logFailure(AuditBridgePairFailed, r, err.Error(),
			slog.String("bridge_ip", req.BridgeIP))
		mapError(w, err)
		return
	}

	a.sessions.StoreBridgeCredentials(req.BridgeIP, username)
	a.audit.log(AuditBridgePaired, r, slog.String("bridge_ip", req.BridgeIP))
	writeJSON(w, http.StatusOK, PairResponse{Username: username})
}

// CreateSession handles POST /auth/session. Every call mints a fresh token;
// issuing a new session never revokes older ones.
func (a *API) CreateSession(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CreateSessionRequest](w, r)
	if !ok {
		return
	}
	switch {
	case req.BridgeIP == "":
		writeError(w, http.StatusBadRequest, "missing bridgeIp parameter")
		return
	case req.Username == "":
		writeError(w, http.StatusBadRequest, "missing username parameter")
		return
	}

	token, expiresIn, err := a.sessions.Create(req.BridgeIP, req.Username)
	if err != nil {
		mapError(w, err)
		return
	}

	a.audit.log(AuditSessionCreated, r, slog.String("bridge_ip", req.BridgeIP))
	writeJSON(w, http.StatusOK, CreateSessionResponse{Token: token, ExpiresIn: expiresIn})
}

// RevokeSession handles DELETE /auth/session. Revocation is idempotent, but
// reaching this handler already required a valid token.
func (a *API) RevokeSession(w http.ResponseWriter, r *http.Request) {
	token := sessionTokenFromContext(r.Context())
	a.sessions.Revoke(token)
	a.audit.log(AuditSessionRevoked, r)
	w.WriteHeader(http.StatusNoContent)
}

// ListAuditEvents handles GET /auth/audit.
func (a *API) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	if a.auditPersist == nil {
		writeJSON(w, http.StatusOK, ListAuditResponse{Events: []AuditEntry{}})
		return
	}
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	entries, err := a.auditPersist.list(limit)
	if err != nil {
		mapError(w, err)
		return
	}
	if entries == nil {
		entries = []AuditEntry{}
	}
	writeJSON(w, http.StatusOK, ListAuditResponse{Events: entries})
}

// proxyGet forwards a GET to the bridge using the request's resolved
// credentials and relays the bridge's JSON verbatim.
func (a *API) proxyGet(w http.ResponseWriter, r *http.Request, path string) {
	creds, ok := CredentialsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "credentials missing from context")
		return
	}
	raw, err := a.bridge.Get(r.Context(), creds.BridgeIP, creds.Username, path)
	if err != nil {
		mapError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

func (a *API) proxyPut(w http.ResponseWriter, r *http.Request, path string) {
	creds, ok := CredentialsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, "credentials missing from context")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body")
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	raw, err := a.bridge.Put(r.Context(), creds.BridgeIP, creds.Username, path, body)
	if err != nil {
		mapError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

func (a *API) ListLights(w http.ResponseWriter, r *http.Request) {
	a.proxyGet(w, r, "lights")
}

func (a *API) GetLight(w http.ResponseWriter, r *http.Request) {
	a.proxyGet(w, r, "lights/"+chi.URLParam(r, "lightID"))
}

func (a *API) SetLightState(w http.ResponseWriter, r *http.Request) {
	a.proxyPut(w, r, "lights/"+chi.URLParam(r, "lightID")+"/state")
}

func (a *API) ListGroups(w http.ResponseWriter, r *http.Request) {
	a.proxyGet(w, r, "groups")
}

func (a *API) SetGroupAction(w http.ResponseWriter, r *http.Request) {
	a.proxyPut(w, r, "groups/"+chi.URLParam(r, "groupID")+"/action")
}

func (a *API) ListScenes(w http.ResponseWriter, r *http.Request) {
	a.proxyGet(w, r, "scenes")
}
