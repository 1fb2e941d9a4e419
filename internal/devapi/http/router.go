package http

import (
	"log/slog"
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/aussiebroadwan/pmboard/api/devapi" // Swagger docs
	"github.com/aussiebroadwan/pmboard/internal/devapi/domain"
	"github.com/aussiebroadwan/pmboard/internal/devapi/service"
	"github.com/aussiebroadwan/pmboard/internal/devapi/store"
	"github.com/aussiebroadwan/pmboard/pkg/httpx"
	"github.com/aussiebroadwan/pmboard/pkg/jwtx"
	"github.com/aussiebroadwan/pmboard/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     *jwtx.EdDSAVerifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	AuthService   *service.AuthService
	UserService   *service.UserService
	RecordService *service.RecordService

	// AuthLimit and APILimit default to the httpx profiles.
	AuthLimit httpx.RateLimitConfig
	APILimit  httpx.RateLimitConfig
}

func NewRouter(
	verifier *jwtx.EdDSAVerifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		AuthLimit:    httpx.AuthLimit,
		APILimit:     httpx.APILimit,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerResources()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP applies the global middleware chain.
//
//	@title						pmboard Development API
//	@version					0.1.0
//	@description				Stand-in for the project-management dashboard backend. Bearer access tokens are EdDSA JWTs; expired tokens are renewed through /auth/refresh-token.
//
//	@host						localhost:8080
//	@BasePath					/
//	@schemes					http
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) authenticated(h http.Handler, extra ...httpx.Middleware) http.Handler {
	mws := append([]httpx.Middleware{
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByUser(r.APILimit),
	}, extra...)
	return httpx.Chain(h, mws...)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{AuthService: r.AuthService, UserService: r.UserService}
	strict := httpx.RateLimitByIP(r.AuthLimit)

	r.Mux.Handle("POST /auth/login", httpx.Chain(http.HandlerFunc(h.Login), strict))
	r.Mux.Handle("POST /auth/refresh-token", httpx.Chain(http.HandlerFunc(h.Refresh), strict))
	r.Mux.Handle("POST /auth/logout", httpx.Chain(http.HandlerFunc(h.Logout), strict))
	r.Mux.Handle("GET /auth/me", r.authenticated(http.HandlerFunc(h.Me)))
}

// Each resource gets literal routes so they never overlap /auth, /swagger
// or the health endpoints.
func (r *Router) registerResources() {
	for _, resource := range domain.Resources {
		h := &RecordsHandler{RecordService: r.RecordService, Resource: resource}

		r.Mux.Handle("GET /"+resource, r.authenticated(http.HandlerFunc(h.List)))
		r.Mux.Handle("POST /"+resource, r.authenticated(http.HandlerFunc(h.Create)))
		r.Mux.Handle("GET /"+resource+"/{id}", r.authenticated(http.HandlerFunc(h.Get)))
		r.Mux.Handle("PUT /"+resource+"/{id}", r.authenticated(http.HandlerFunc(h.Update)))
		r.Mux.Handle("DELETE /"+resource+"/{id}", r.authenticated(http.HandlerFunc(h.Delete),
			httpx.RequireRole(domain.RoleAdmin),
		))
	}
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.verifier))
	r.Mux.Handle("GET /.well-known/jwks.json", JWKSHandler(r.verifier))
}
