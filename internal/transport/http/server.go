package http

import (
	"fmt"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/kitalumni/alumnichat/internal/config"
	"github.com/kitalumni/alumnichat/internal/core"
)

// NewServer builds the HTTP server: health, presence and history routes plus the
// WebSocket gateway, all behind the CORS allow-list.
func NewServer(hub *core.Hub, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	api := NewAPIHandlers(hub, logger)
	router.GET("/health", healthHandler)
	router.GET("/api/presence", api.Presence)
	router.GET("/api/chat/history", api.History)

	// gin refuses to hijack a response it has already written, and the upgrade
	// writes the 101 before hijacking, so /ws stays on the plain mux.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, cfg, logger))
	mux.Handle("/", router)

	handler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})(mux)

	return &stdhttp.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.Status(stdhttp.StatusOK)
	_, _ = fmt.Fprint(c.Writer, "ok")
}
