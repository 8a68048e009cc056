package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/core"
)

// maxCloseReason is the longest close reason that fits a control frame.
const maxCloseReason = 120

// WSHandler upgrades HTTP connections and runs them as hub sessions.
type WSHandler struct {
	hub       *core.Hub
	log       *zerolog.Logger
	accept    *websocket.AcceptOptions
	readLimit int64
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	opts := &websocket.AcceptOptions{}
	if cfg.AllowAnyOrigin() {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = cfg.AllowedOrigins
	}
	return &WSHandler{
		hub:       hub,
		log:       logger,
		accept:    opts,
		readLimit: cfg.MaxMessageBytes,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	if h.readLimit > 0 {
		conn.SetReadLimit(h.readLimit)
	}

	err = h.hub.Serve(r.Context(), &wsConn{conn: conn})
	if status, _ := closeStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
		h.log.Warn().Err(err).Msg("ws connection closed with error")
		return
	}
	h.log.Debug().AnErr("cause", err).Msg("ws connection closed")
}

// wsConn adapts a WebSocket connection to core.Conn.
type wsConn struct {
	conn *websocket.Conn
}

// Read returns the next data frame. Text and binary frames are both accepted.
func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *wsConn) Write(ctx context.Context, payload []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

func (c *wsConn) Close(cause error) error {
	status, reason := closeStatus(cause)
	return c.conn.Close(status, reason)
}

// closeStatus maps the error that ended a session to a close frame.
func closeStatus(cause error) (websocket.StatusCode, string) {
	switch {
	case cause == nil, errors.Is(cause, io.EOF), errors.Is(cause, context.Canceled):
		return websocket.StatusNormalClosure, "closing"
	case errors.Is(cause, core.ErrHubClosed):
		return websocket.StatusGoingAway, "server shutting down"
	}

	switch s := websocket.CloseStatus(cause); s {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return websocket.StatusNormalClosure, "closing"
	case websocket.StatusMessageTooBig:
		return s, "message too big"
	}

	return websocket.StatusInternalError, truncateReason(cause.Error())
}

// truncateReason shortens s to maxCloseReason bytes without splitting a rune.
func truncateReason(s string) string {
	if len(s) <= maxCloseReason {
		return s
	}
	n := maxCloseReason
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
