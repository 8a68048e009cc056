package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/metrics"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

func startTestServer(t *testing.T, mutate func(*config.Config)) (*httptest.Server, *core.Hub) {
	t.Helper()

	cfg := config.Default()
	cfg.GinMode = "test"
	if mutate != nil {
		mutate(&cfg)
	}

	logger := zerolog.Nop()
	m := metrics.New()
	hub := core.NewHub(core.Options{
		SendQueueSize:   cfg.SendQueueSize,
		WriteTimeout:    cfg.WriteTimeout,
		StatusMessage:   cfg.StatusMessage,
		LegacyPlainText: cfg.LegacyPlainText,
	}, &logger, m)

	server := NewServer(hub, &cfg, &logger, m)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
	})

	return ts, hub
}

func wsURL(ts *httptest.Server, path string) string {
	return strings.Replace(ts.URL, "http", "ws", 1) + path
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func readEvent(t *testing.T, ctx context.Context, conn *websocket.Conn) proto.Event {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	ev, err := proto.DecodeEvent(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return ev
}

// readUntil skips events until one with the given tag arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, tag string) proto.Event {
	t.Helper()
	for {
		ev := readEvent(t, ctx, conn)
		if ev.EventType() == tag {
			return ev
		}
	}
}

// join dials and consumes the connect sequence, returning the assigned identity.
func join(t *testing.T, ctx context.Context, url string) (*websocket.Conn, int64) {
	t.Helper()
	conn := dial(t, ctx, url)
	id, ok := readEvent(t, ctx, conn).(proto.IdentityAssigned)
	if !ok {
		t.Fatal("first event is not the identity")
	}
	readUntil(t, ctx, conn, proto.TypeUserList)
	return conn, id.UserID
}
