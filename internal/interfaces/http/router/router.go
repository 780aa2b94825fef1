package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/blingsync/backend/internal/infrastructure/auth"
	"github.com/blingsync/backend/internal/infrastructure/config"
	"github.com/blingsync/backend/internal/interfaces/http/handler"
	"github.com/blingsync/backend/internal/interfaces/http/middleware"
)

// RouteRegistrar registers a handler's routes on a group
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Config wires the router's dependencies
type Config struct {
	HTTP       *config.HTTPConfig
	JWTService *auth.JWTService
	Logger     *zap.Logger

	System    *handler.SystemHandler
	Webhook   *handler.WebhookHandler
	Jobs      *handler.JobHandler
	PriceSync *handler.PriceSyncHandler
}

// Setup builds the gin engine: the unauthenticated webhook ingestion route
// behind its rate limit, and the JWT-protected management API
func Setup(cfg Config) *gin.Engine {
	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.RequestLogger(cfg.Logger),
		middleware.Recovery(cfg.Logger),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)
	if len(cfg.HTTP.TrustedProxies) > 0 {
		_ = engine.SetTrustedProxies(cfg.HTTP.TrustedProxies)
	}

	cfg.System.RegisterHealthRoute(engine)

	api := engine.Group("/api/v1")

	// provider deliveries authenticate with their HMAC signature, not JWT
	ingest := api.Group("")
	if cfg.HTTP.WebhookRateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.WebhookRateLimitRequests, cfg.HTTP.WebhookRateLimitWindow)
		ingest.Use(middleware.RateLimit(limiter))
	}
	cfg.Webhook.RegisterRoutes(ingest)

	management := api.Group("")
	management.Use(middleware.JWTAuth(cfg.JWTService))
	for _, registrar := range []RouteRegistrar{cfg.Jobs, cfg.PriceSync, cfg.System} {
		registrar.RegisterRoutes(management)
	}

	return engine
}
