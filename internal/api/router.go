package api

import (
	"html/template"
	"net/http"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/rs/zerolog"

	"github.com/verisend/server/internal/api/handlers"
	"github.com/verisend/server/internal/api/middleware"
	"github.com/verisend/server/internal/audit"
	"github.com/verisend/server/internal/auth"
	"github.com/verisend/server/internal/config"
	"github.com/verisend/server/internal/domain/users"
	"github.com/verisend/server/internal/domain/verification"
	"github.com/verisend/server/internal/metrics"
	"github.com/verisend/server/internal/ws"
	"github.com/verisend/server/web"
)

// RouterDeps carries everything the router wires together. The serve command
// assembles it once per process.
type RouterDeps struct {
	Config        config.Config
	Logger        zerolog.Logger
	Pool          *pgxpool.Pool
	Verifications *verification.Service
	Users         users.Repository
	RiverClient   *river.Client[pgx.Tx]
	JWTManager    *auth.JWTManager
	Hub           *ws.Hub
	Templates     *template.Template
	Version       string
	GitCommit     string
}

// NewRouter builds the HTTP handler for the process role. The worker role
// exposes operational endpoints and the queue dashboard; the main role
// carries the full API.
func NewRouter(deps RouterDeps) http.Handler {
	cfg := deps.Config
	mux := http.NewServeMux()

	checker := handlers.NewHealthChecker(deps.Pool, deps.RiverClient, deps.Version, deps.GitCommit, cfg.Server.Role)
	mux.Handle("/healthz", handlers.Healthz())
	mux.Handle("/readyz", checker.Ready())
	mux.Handle("/metrics", metrics.Handler())

	auditLogger := audit.NewLogger(deps.Logger)
	adminAuthHandler := handlers.NewAdminAuthHandler(deps.Users, deps.JWTManager, cfg.Auth.TokenExpiry, cfg.Auth.CookieSecure, cfg.Environment, deps.Templates, auditLogger)
	queuesHandler := handlers.NewQueuesHandler(deps.Pool, deps.RiverClient, cfg.Environment, deps.Templates, auditLogger)

	// The dashboard checks the auth cookie on every request, including the
	// JSON data endpoints the page polls. Both roles serve it: operators
	// inspect the queue on the worker process too.
	cookieGate := middleware.AdminAuthCookie(deps.JWTManager, "/api/queues/login")
	csrf := middleware.CSRFProtection([]byte(cfg.Auth.Secret), cfg.Auth.CookieSecure)

	mux.Handle("/api/queues", cookieGate(methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(queuesHandler.Dashboard),
	})))
	mux.Handle("/api/queues/login", csrf(methodMux(map[string]http.Handler{
		http.MethodGet:  http.HandlerFunc(adminAuthHandler.LoginPage),
		http.MethodPost: http.HandlerFunc(adminAuthHandler.FormLogin),
	})))
	mux.Handle("/api/queues/stats", cookieGate(methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(queuesHandler.Stats),
	})))
	mux.Handle("/api/queues/jobs", cookieGate(methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(queuesHandler.Jobs),
	})))
	mux.Handle("/api/queues/jobs/{id}/retry", cookieGate(methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(queuesHandler.RetryJob),
	})))
	mux.Handle("/api/queues/jobs/{id}/cancel", cookieGate(methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(queuesHandler.CancelJob),
	})))

	if cfg.Server.Role == config.RoleWorker {
		return wrap(mux, cfg, deps.Logger)
	}

	mux.Handle("/", web.IndexHandler())
	mux.Handle("/robots.txt", web.RobotsTxtHandler())
	mux.Handle("/api/docs", web.APIDocsHandler())
	mux.Handle("/api/v1/openapi.json", OpenAPIHandler())

	verificationsHandler := handlers.NewVerificationsHandler(deps.Verifications, cfg.Environment, auditLogger)
	wsHandler := handlers.NewWSHandler(deps.Hub, cfg.CORS, deps.Logger)

	adminAPI := middleware.JWTAuth(deps.JWTManager, cfg.Environment)

	mux.Handle("/api/v1/verifications", methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(verificationsHandler.Create),
	}))
	mux.Handle("/api/v1/verifications/confirm", methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(verificationsHandler.Confirm),
	}))
	mux.Handle("/api/v1/verifications/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:    adminAPI(http.HandlerFunc(verificationsHandler.Get)),
		http.MethodDelete: adminAPI(http.HandlerFunc(verificationsHandler.Delete)),
	}))

	mux.Handle("/api/v1/ws", methodMux(map[string]http.Handler{
		http.MethodGet: http.HandlerFunc(wsHandler.Subscribe),
	}))

	mux.Handle("/api/v1/admin/login", methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(adminAuthHandler.Login),
	}))
	mux.Handle("/api/v1/admin/logout", methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(adminAuthHandler.Logout),
	}))

	return wrap(mux, cfg, deps.Logger)
}

// wrap applies the shared middleware chain, outermost first.
func wrap(h http.Handler, cfg config.Config, logger zerolog.Logger) http.Handler {
	requireHTTPS := cfg.Environment == "production"

	h = middleware.RateLimit(cfg.RateLimit)(h)
	h = middleware.Recover(cfg.Environment)(h)
	h = metrics.HTTPMiddleware(h)
	h = middleware.RequestLogging(logger)(h)
	h = middleware.Tracing(h)
	h = middleware.CorrelationID(logger)(h)
	h = middleware.CORS(cfg.CORS, logger)(h)
	h = middleware.SecurityHeaders(requireHTTPS)(h)
	h = middleware.PublicRequestSize()(h)
	return h
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
