package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/lumenhq/lumen/hive"
	"github.com/lumenhq/lumen/hue"
	"github.com/lumenhq/lumen/secrets"
	"github.com/lumenhq/lumen/session"
)

// defaultAppName is sent to the bridge as the devicetype during pairing.
const defaultAppName = "lumen#panel"

// API holds the dependencies needed by the REST handlers.
type API struct {
	sessions     *session.Manager
	bridge       *hue.Client
	hiveStore    *secrets.Store
	hiveFlow     *hive.Flow
	demoFlow     *hive.Flow
	rateLimiter  *loginRateLimiter
	audit        *auditLogger
	auditPersist *AuditStore
	appName      string

	stopOnce sync.Once
	stopCh   chan struct{}
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithHiveFlow installs the authentication flow backed by the real identity
// provider.
func WithHiveFlow(flow *hive.Flow) Option {
	return func(a *API) {
		a.hiveFlow = flow
	}
}

// WithDemoFlow installs the flow used when a request asks for demo mode.
func WithDemoFlow(flow *hive.Flow) Option {
	return func(a *API) {
		a.demoFlow = flow
	}
}

// WithAuditStore attaches persistent storage for audit events.
func WithAuditStore(store *AuditStore) Option {
	return func(a *API) {
		a.auditPersist = store
	}
}

// WithAppName overrides the devicetype sent during bridge pairing.
func WithAppName(name string) Option {
	return func(a *API) {
		a.appName = name
	}
}

// New creates a new API instance.
func New(sessions *session.Manager, bridge *hue.Client, hiveStore *secrets.Store, opts ...Option) *API {
	a := &API{
		sessions:    sessions,
		bridge:      bridge,
		hiveStore:   hiveStore,
		rateLimiter: newLoginRateLimiter(),
		appName:     defaultAppName,
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	if a.auditPersist != nil {
		a.audit.store = a.auditPersist
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Post("/auth/pair", a.Pair)
	r.Post("/auth/session", a.CreateSession)
	r.With(a.RequireSession).Delete("/auth/session", a.RevokeSession)
	r.With(a.RequireSession).Get("/auth/audit", a.ListAuditEvents)

	r.Post("/hive/login", a.HiveLogin)
	r.Post("/hive/verify", a.HiveVerify)
	r.Post("/hive/refresh", a.HiveRefresh)
	r.Post("/hive/logout", a.HiveLogout)
	r.Get("/hive/status", a.HiveStatus)
	r.Post("/hive/credentials", a.StoreHiveCredentials)
	r.Delete("/hive/credentials", a.ClearHiveCredentials)

	// Bridge proxy routes accept any of the three credential channels.
	r.Group(func(r chi.Router) {
		r.Use(a.RequireCredentials)
		r.Get("/lights", a.ListLights)
		r.Get("/lights/{lightID}", a.GetLight)
		r.Put("/lights/{lightID}/state", a.SetLightState)
		r.Get("/groups", a.ListGroups)
		r.Put("/groups/{groupID}/action", a.SetGroupAction)
		r.Get("/scenes", a.ListScenes)
	})

	return r
}

// flowFor selects the demo or real flow for a request. A nil return means
// the deployment has no provider configured for that mode.
func (a *API) flowFor(demo bool) *hive.Flow {
	if demo {
		return a.demoFlow
	}
	return a.hiveFlow
}
