// Package http serves the status API, metrics and the WebSocket transport.
package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/linechat/internal/config"
	"github.com/vovakirdan/linechat/internal/core"
)

// Deps are the components the HTTP routes expose.
type Deps struct {
	Hub     *core.Hub
	Auth    Authenticator
	Lines   LineServer      // nil disables /ws
	Metrics stdhttp.Handler // nil disables /metrics
}

// NewServer builds the HTTP server. Routes:
//
//	GET  /health
//	GET  /metrics
//	GET  /ws
//	GET  /api/stats
//	POST /api/register
//	POST /api/login
//	GET  /api/me        (Bearer token)
//	GET  /api/channels  (Bearer token)
//	GET  /api/users     (Bearer token)
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	if deps.Lines != nil {
		router.GET("/ws", gin.WrapH(NewWSHandler(deps.Lines, cfg.MaxLineBytes, logger)))
	}

	apiHandlers := NewAPIHandlers(deps.Auth, logger)
	statusHandlers := NewStatusHandlers(deps.Hub)

	api := router.Group("/api")
	{
		api.GET("/stats", statusHandlers.Stats)
		api.POST("/register", apiHandlers.Register)
		api.POST("/login", apiHandlers.Login)
	}

	protected := api.Group("")
	protected.Use(AuthMiddleware(deps.Auth, logger))
	{
		protected.GET("/me", statusHandlers.Me)
		protected.GET("/channels", statusHandlers.Channels)
		protected.GET("/users", statusHandlers.Users)
	}

	return &stdhttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
