package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chat-relay/auth"
	"chat-relay/domain/chat"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddr string `envconfig:"CHAT_SERVER_ADDR" default:"localhost:4000"`
	Token      string `envconfig:"CHAT_TOKEN"`
	RoomID     string `envconfig:"CHAT_ROOM_ID" default:"1"`
	// CHAT_DEV_SECRET mints a local token when no CHAT_TOKEN is provided,
	// for development against a relay sharing the same secret.
	DevSecret   string `envconfig:"CHAT_DEV_SECRET"`
	DevUserID   string `envconfig:"CHAT_DEV_USER_ID" default:"dev"`
	DevUsername string `envconfig:"CHAT_DEV_USERNAME" default:"dev"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	token := config.Token
	if token == "" {
		if config.DevSecret == "" {
			return exitConfig, fmt.Errorf("either CHAT_TOKEN or CHAT_DEV_SECRET is required")
		}
		minted, err := auth.GenerateToken(config.DevSecret, config.DevUserID, config.DevUsername, 24*time.Hour)
		if err != nil {
			return exitConfig, fmt.Errorf("token minting failed: %w", err)
		}
		token = minted
	}

	// 2. Connect to the relay.
	endpoint := url.URL{
		Scheme:   "ws",
		Host:     config.ServerAddr,
		Path:     "/ws",
		RawQuery: url.Values{"token": {token}}.Encode(),
	}
	conn, _, err := websocket.DefaultDialer.Dial(endpoint.String(), nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", config.ServerAddr, err)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				color.Gray.Println("connection closed")
				return
			}
			printFrame(raw)
		}
	}()

	// 3. Join the default room, then relay stdin lines as messages.
	room := config.RoomID
	send(conn, map[string]any{"type": "SUBSCRIBE", "roomId": room})
	color.Gray.Printf("commands: /join <room>, /leave <room>, /quit\n")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-done:
			return exitOK, nil
		case <-interrupt:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case line == "/quit":
				return exitOK, nil
			case strings.HasPrefix(line, "/join "):
				room = strings.TrimSpace(strings.TrimPrefix(line, "/join "))
				send(conn, map[string]any{"type": "SUBSCRIBE", "roomId": room})
			case strings.HasPrefix(line, "/leave "):
				left := strings.TrimSpace(strings.TrimPrefix(line, "/leave "))
				send(conn, map[string]any{"type": "UNSUBSCRIBE", "roomId": left})
			default:
				send(conn, map[string]any{"type": "MESSAGE", "roomId": room, "content": line})
			}
		}
	}
}

func send(conn *websocket.Conn, frame map[string]any) {
	if err := conn.WriteJSON(frame); err != nil {
		color.Red.Printf("send failed: %v\n", err)
	}
}

// printFrame renders one server frame with a color per kind.
func printFrame(raw []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		color.Red.Printf("unreadable frame: %s\n", raw)
		return
	}

	switch head.Type {
	case chat.FrameWelcome:
		var frame chat.WelcomeFrame
		_ = json.Unmarshal(raw, &frame)
		color.Green.Printf("connected as %s\n", frame.User)
	case chat.FrameError:
		var frame chat.ErrorFrame
		_ = json.Unmarshal(raw, &frame)
		color.Red.Printf("error: %s\n", frame.Error)
	case chat.FrameUserJoin:
		var frame chat.PresenceFrame
		_ = json.Unmarshal(raw, &frame)
		color.Yellow.Printf("-> %s joined room %s\n", frame.User, frame.RoomID)
	case chat.FrameUserLeave:
		var frame chat.PresenceFrame
		_ = json.Unmarshal(raw, &frame)
		color.Yellow.Printf("<- %s left room %s\n", frame.User, frame.RoomID)
	case chat.FrameMessage:
		var frame chat.MessageFrame
		_ = json.Unmarshal(raw, &frame)
		color.Cyan.Printf("[%s] %s: ", frame.RoomID, frame.Username)
		fmt.Println(frame.Content)
	default:
		color.Gray.Printf("%s\n", raw)
	}
}
