package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirerelay/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	var self int64
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		ev, err := proto.DecodeEvent(data)
		if err != nil {
			fmt.Printf("Undecodable event: %s (%v)\n", data, err)
			continue
		}

		switch ev := ev.(type) {
		case proto.IdentityAssigned:
			self = ev.UserID
			fmt.Printf("Identity: %d\n", self)
		case proto.Status:
			fmt.Printf("Status: %s\n", ev.Message)
		case proto.MemberJoined:
			fmt.Printf("Join: %s (%d)\n", ev.User.Name, ev.User.ID)
		case proto.RosterSnapshot:
			fmt.Printf("Roster: %d users\n", len(ev.Users))
			if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.TypeMessage, Content: *text}); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		case proto.ChatMessage:
			fmt.Printf("Message: user=%d text=%q ts=%d\n", ev.UserID, ev.Message, ev.Timestamp)
			if ev.UserID == self && ev.Message == *text {
				return nil
			}
		case proto.MemberLeft:
			fmt.Printf("Left: %d\n", ev.UserID)
		}
	}
}
