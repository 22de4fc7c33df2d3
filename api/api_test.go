package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenhq/lumen/api"
	"github.com/lumenhq/lumen/hive"
	"github.com/lumenhq/lumen/hue"
	"github.com/lumenhq/lumen/secrets"
	"github.com/lumenhq/lumen/session"
)

// bridgeTransport redirects every request to the stub bridge server,
// regardless of which bridge IP the client dialed.
type bridgeTransport struct {
	stub *httptest.Server
}

func (t bridgeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	u, err := url.Parse(t.stub.URL)
	if err != nil {
		return nil, err
	}
	req.URL.Scheme = u.Scheme
	req.URL.Host = u.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newBridgeStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"success":{"username":"stub-bridge-user"}}]`))
	})
	mux.HandleFunc("GET /api/{username}/lights", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"1":{"name":"Hallway","state":{"on":true}}}`))
	})
	mux.HandleFunc("PUT /api/{username}/lights/{id}/state", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"success":{"/lights/1/state/on":false}}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()

	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	rawKey, err := secrets.ParseKey(key)
	require.NoError(t, err)
	store, err := secrets.NewStore(filepath.Join(t.TempDir(), "hive-credentials.json"), rawKey)
	require.NoError(t, err)

	mgr := session.NewManager()
	t.Cleanup(mgr.Close)

	stub := newBridgeStub(t)
	bridge := hue.New(hue.WithHTTPClient(&http.Client{Transport: bridgeTransport{stub}}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	demoStore, err := secrets.NewStore(filepath.Join(t.TempDir(), "demo-credentials.json"), rawKey)
	require.NoError(t, err)
	demoFlow := hive.NewFlow(demoStore, hive.NewDemoProvider(), hive.WithFlowLogger(logger))

	auditStore, err := api.OpenAuditStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { auditStore.Close() })

	a := api.New(mgr, bridge, store,
		api.WithLogger(logger),
		api.WithDemoFlow(demoFlow),
		api.WithAuditStore(auditStore))
	r := chi.NewRouter()
	r.Mount("/api/v1", a.Router())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, &reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createSession(t *testing.T, baseURL string) string {
	t.Helper()
	resp := doJSON(t, http.MethodPost, baseURL+"/api/v1/auth/session", "", map[string]string{
		"bridgeIp": "192.168.1.50",
		"username": "abc123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	created := decodeBody[api.CreateSessionResponse](t, resp)
	require.Regexp(t, `^sess_[0-9a-f]{64}$`, created.Token)
	require.Equal(t, 86400, created.ExpiresIn)
	return created.Token
}

func TestSessionLifecycle(t *testing.T) {
	srv := setupServer(t)
	token := createSession(t, srv.URL)

	// The token works against a proxy route.
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/lights", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Revoke it.
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/auth/session", token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	// The same token is now rejected outright.
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/lights", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Revoking twice is fine, but the dead token no longer authenticates
	// the revocation endpoint itself.
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/auth/session", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestIndependentSessions(t *testing.T) {
	srv := setupServer(t)
	first := createSession(t, srv.URL)
	second := createSession(t, srv.URL)
	require.NotEqual(t, first, second)

	// Revoking one leaves the other alive.
	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/auth/session", first, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/lights", second, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestPairAndProxy(t *testing.T) {
	srv := setupServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/pair", "", map[string]string{
		"bridgeIp": "192.168.1.50",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	paired := decodeBody[api.PairResponse](t, resp)
	assert.Equal(t, "stub-bridge-user", paired.Username)

	// Query-parameter credentials reach the bridge too.
	resp = doJSON(t, http.MethodGet,
		srv.URL+"/api/v1/lights?bridgeIp=192.168.1.50&username="+paired.Username, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "Hallway")

	// And a PUT through the light-state route.
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPut,
		srv.URL+"/api/v1/lights/1/state?bridgeIp=192.168.1.50&username="+paired.Username,
		bytes.NewBufferString(`{"on":false}`))
	require.NoError(t, err)
	putResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, putResp.StatusCode)
	putResp.Body.Close()
}

func TestPairValidation(t *testing.T) {
	srv := setupServer(t)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/pair", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHiveDemoEndToEnd(t *testing.T) {
	srv := setupServer(t)

	// Wrong password is an inline authentication error.
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/hive/login", "", map[string]any{
		"username": hive.DemoUsername,
		"password": "wrong",
		"demo":     true,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Correct credentials yield an SMS challenge.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/hive/login", "", map[string]any{
		"username": hive.DemoUsername,
		"password": hive.DemoPassword,
		"demo":     true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decodeBody[api.HiveLoginResponse](t, resp)
	require.True(t, login.Requires2FA)
	require.NotEmpty(t, login.Session)

	// A wrong code is rejected but leaves the challenge usable.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/hive/verify", "", map[string]any{
		"code":     "000000",
		"session":  login.Session,
		"username": hive.DemoUsername,
		"demo":     true,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// The correct code on the same session completes the login.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/hive/verify", "", map[string]any{
		"code":     hive.DemoSMSCode,
		"session":  login.Session,
		"username": hive.DemoUsername,
		"demo":     true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	verified := decodeBody[api.HiveVerifyResponse](t, resp)
	require.True(t, verified.Success)
	require.NotEmpty(t, verified.AccessToken)
	require.NotEmpty(t, verified.RefreshToken)

	// The registered device skips the challenge next time.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/hive/login", "", map[string]any{
		"username": hive.DemoUsername,
		"password": hive.DemoPassword,
		"demo":     true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decodeBody[api.HiveLoginResponse](t, resp)
	assert.False(t, second.Requires2FA)
	assert.NotEmpty(t, second.AccessToken)

	// Tokens refresh.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/hive/refresh", "", map[string]any{
		"refreshToken": verified.RefreshToken,
		"demo":         true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	refreshed := decodeBody[api.HiveRefreshResponse](t, resp)
	assert.NotEmpty(t, refreshed.AccessToken)

	// Logout drops the cached tokens.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/hive/logout", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}

func TestHiveCredentialStorage(t *testing.T) {
	srv := setupServer(t)

	// Status starts unconfigured.
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/hive/status", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeBody[api.HiveStatusResponse](t, resp)
	assert.False(t, status.Configured)

	// A malformed email is rejected.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/hive/credentials", "", map[string]string{
		"username": "not-an-email",
		"password": "secret",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Valid credentials stick.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/hive/credentials", "", map[string]string{
		"username": "alice@example.com",
		"password": "secret",
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/hive/status", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status = decodeBody[api.HiveStatusResponse](t, resp)
	assert.True(t, status.Configured)
	assert.Equal(t, "alice@example.com", status.Username)

	// And clear.
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/hive/credentials", "", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/hive/status", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status = decodeBody[api.HiveStatusResponse](t, resp)
	assert.False(t, status.Configured)
}

func TestHiveLoginStoredCredentialsStayPerFlow(t *testing.T) {
	srv := setupServer(t)

	// Credentials land in the real store.
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/hive/credentials", "", map[string]string{
		"username": "alice@example.com",
		"password": "secret",
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	// A demo login that omits the username must answer from the demo
	// flow's own (empty) store, not borrow the real account.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/hive/login", "", map[string]any{
		"demo": true,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHiveLoginRateLimit(t *testing.T) {
	srv := setupServer(t)

	for i := 0; i < 5; i++ {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/hive/login", "", map[string]any{
			"username": "attacker@hive.com",
			"password": "guess",
			"demo":     true,
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	}

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/hive/login", "", map[string]any{
		"username": "attacker@hive.com",
		"password": "guess",
		"demo":     true,
	})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	resp.Body.Close()
}

func TestAuditTrail(t *testing.T) {
	srv := setupServer(t)
	token := createSession(t, srv.URL)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/auth/audit", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	audit := decodeBody[api.ListAuditResponse](t, resp)
	require.NotEmpty(t, audit.Events)
	assert.Equal(t, string(api.AuditSessionCreated), audit.Events[0].Event)

	// The audit endpoint itself requires a session.
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/v1/auth/audit", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestOpenAPIServed(t *testing.T) {
	srv := setupServer(t)
	resp, err := http.Get(srv.URL + "/api/v1/openapi.yaml")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Lumen Control Panel API")
}
