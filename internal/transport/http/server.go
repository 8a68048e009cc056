package http

import (
	stdhttp "net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/metrics"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

const banner = "wirerelay: connect with a WebSocket client at /ws"

// RosterResponse is the body of GET /api/roster.
type RosterResponse struct {
	Users []proto.User `json:"users"`
}

// NewServer builds an HTTP server with the relay routes. m may be nil.
func NewServer(hub *core.Hub, cfg *config.Config, logger *zerolog.Logger, m *metrics.Metrics) *stdhttp.Server {
	gin.SetMode(ginMode(cfg.GinMode))

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	ws := NewWSHandler(hub, cfg, logger)

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(ws))
	router.GET("/", rootHandler(ws))
	router.GET("/api/roster", rosterHandler(hub))
	if cfg.MetricsPath != "" && m != nil {
		router.GET(cfg.MetricsPath, gin.WrapH(m.Handler()))
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

// rootHandler upgrades WebSocket requests on "/" so clients that connect to the bare
// host keep working, and answers plain requests with a banner.
func rootHandler(ws stdhttp.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isUpgrade(c.Request) {
			ws.ServeHTTP(c.Writer, c.Request)
			return
		}
		c.String(stdhttp.StatusOK, banner)
	}
}

func rosterHandler(hub *core.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(stdhttp.StatusOK, RosterResponse{Users: hub.Roster()})
	}
}

func isUpgrade(r *stdhttp.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func ginMode(mode string) string {
	switch mode {
	case gin.DebugMode, gin.TestMode:
		return mode
	default:
		return gin.ReleaseMode
	}
}
