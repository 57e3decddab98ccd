// Package server assembles the HTTP API from the feature handlers.
package server

import (
	"net/http"

	"github.com/familyships/familyships/pkg/familyships/apikeys"
	"github.com/familyships/familyships/pkg/familyships/auth"
	"github.com/familyships/familyships/pkg/familyships/families"
	"github.com/familyships/familyships/pkg/familyships/importexport"
	"github.com/familyships/familyships/pkg/familyships/logging"
	"github.com/familyships/familyships/pkg/familyships/oauth"
	"github.com/familyships/familyships/pkg/familyships/ownership"
	"github.com/familyships/familyships/pkg/familyships/people"
	"github.com/familyships/familyships/pkg/familyships/ratelimit"
	"github.com/familyships/familyships/pkg/familyships/relations"
	"github.com/familyships/familyships/pkg/familyships/store"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Options carries the shared dependencies of every route.
type Options struct {
	Store   *store.Store
	Tokens  *auth.Tokens
	Limiter *ratelimit.Limiter
	Logger  *zap.Logger
	OAuth   oauth.Config
}

// NewRouter registers every route on a new gin engine.
func NewRouter(opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.New(0, 0)
	}

	gate := ownership.NewGate(opts.Store, logger.Named("ownership"))
	service := relations.NewService(opts.Store, logger.Named("relations"))

	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(logger.Named("http")))

	health := func(c *gin.Context) {
		if err := opts.Store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "familyships"})
	}
	r.GET("/health", health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/health", health)

		// Login routes (public)
		oauthHandler := oauth.NewHandler(opts.OAuth, gate, opts.Tokens, logger.Named("oauth"))
		oauthHandler.RegisterRoutes(api.Group("/auth"))

		// Tree routes accept a session token or an API key. Callers are
		// throttled before their tree is resolved.
		combinedAuth := apikeys.CombinedAuthMiddleware(opts.Tokens, opts.Store, logger.Named("apikeys"))
		protected := api.Group("", combinedAuth, limiter.Middleware(), auth.TreeMiddleware(gate))

		auth.NewHandler(opts.Tokens).RegisterRoutes(protected.Group("/auth"))
		people.NewHandler(service).RegisterRoutes(protected)
		families.NewHandler(service).RegisterRoutes(protected)
		importexport.NewHandler(service).RegisterRoutes(protected)

		// API keys are managed with a session token only
		session := api.Group("", auth.AuthMiddleware(opts.Tokens), limiter.Middleware(), auth.TreeMiddleware(gate))
		apikeys.NewHandler(opts.Store, gate, logger.Named("apikeys")).RegisterRoutes(session)
	}

	return r
}
