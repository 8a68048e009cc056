package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirerelay/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	plain := flag.Bool("plain", false, "send raw text frames instead of JSON envelopes")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("Connected to %s\n", *addr)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *plain)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	names := make(map[int64]string)
	name := func(id int64) string {
		if n, ok := names[id]; ok {
			return n
		}
		return fmt.Sprintf("User%d", id)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		ev, err := proto.DecodeEvent(data)
		if err != nil {
			log.Printf("decode event: %v", err)
			continue
		}

		switch ev := ev.(type) {
		case proto.IdentityAssigned:
			fmt.Printf("You are %s\n", name(ev.UserID))
		case proto.Status:
			fmt.Printf("* %s\n", ev.Message)
		case proto.MemberJoined:
			names[ev.User.ID] = ev.User.Name
			fmt.Printf("* %s joined\n", ev.User.Name)
		case proto.RosterSnapshot:
			list := make([]string, 0, len(ev.Users))
			for _, u := range ev.Users {
				names[u.ID] = u.Name
				list = append(list, u.Name)
			}
			fmt.Printf("* online: %s\n", strings.Join(list, ", "))
		case proto.ChatMessage:
			fmt.Printf("%s: %s\n", name(ev.UserID), ev.Message)
		case proto.MemberLeft:
			fmt.Printf("* %s left\n", name(ev.UserID))
			delete(names, ev.UserID)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, plain bool) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			var err error
			if plain {
				err = conn.Write(ctx, websocket.MessageText, []byte(text))
			} else {
				err = wsjson.Write(ctx, conn, proto.Inbound{Type: proto.TypeMessage, Content: text})
			}
			if err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
