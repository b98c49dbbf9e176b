package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/auth"
	"github.com/vovakirdan/wirecall/internal/call"
	"github.com/vovakirdan/wirecall/internal/config"
	"github.com/vovakirdan/wirecall/internal/metrics"
)

// CallStatus exposes the read side of the call service.
type CallStatus interface {
	Status() call.Status
	LastStatsReport() string
}

// NewServer builds the local debug/ops HTTP server. Health and metrics are
// open; the /debug group requires a bearer token.
func NewServer(svc CallStatus, set *metrics.Set, jwtConfig *auth.JWTConfig, cfg config.Config, logger *zerolog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(set.Handler()))

	debug := router.Group("/debug")
	debug.Use(AuthMiddleware(jwtConfig, logger))
	{
		debug.GET("/call", func(c *gin.Context) {
			c.JSON(http.StatusOK, svc.Status())
		})
		debug.GET("/stats", func(c *gin.Context) {
			report := svc.LastStatsReport()
			if report == "" {
				c.String(http.StatusOK, "no call statistics recorded\n")
				return
			}
			c.String(http.StatusOK, report+"\n")
		})
	}

	return &http.Server{
		Addr:    cfg.DebugAddr,
		Handler: router,
	}
}
