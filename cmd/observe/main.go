package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hanifka/lentera/internal/auth"
)

// Small observer client: connects to a running server's observer socket
// and prints every frame it receives. Handy for watching a live session
// from a terminal.
func main() {
	host := flag.String("host", "localhost:8080", "server host:port")
	observerID := flag.String("observer", "terminal-observer", "observer id to connect as")
	flag.Parse()

	token, err := auth.GenerateObserverToken(*observerID)
	if err != nil {
		log.Fatalf("Failed to generate observer token: %v", err)
	}

	u := url.URL{Scheme: "ws", Host: *host, Path: "/ws"}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	fmt.Printf("Connecting to %s as %s\n", u.Host, *observerID)

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Printf("Connection closed: %v", err)
				return
			}
			printFrame(message)
		}
	}()

	// Application-level ping over the frame protocol.
	ping, _ := json.Marshal(map[string]string{
		"type":      "ping",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err := conn.WriteMessage(websocket.TextMessage, ping); err != nil {
		log.Fatalf("Failed to send ping: %v", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case <-done:
	case <-interrupt:
		fmt.Println("\nDisconnecting...")
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

func printFrame(message []byte) {
	var frame map[string]any
	if err := json.Unmarshal(message, &frame); err != nil {
		fmt.Printf("<- %s\n", message)
		return
	}

	switch frame["type"] {
	case "transcript":
		messages, _ := frame["messages"].([]any)
		fmt.Printf("<- transcript (%d turns)\n", len(messages))
		if len(messages) > 0 {
			if last, ok := messages[len(messages)-1].(map[string]any); ok {
				fmt.Printf("   %v: %v\n", last["role"], last["text"])
			}
		}
	case "status":
		fmt.Printf("<- status state=%v speaking=%v\n", frame["state"], frame["speaking"])
	case "insight":
		fmt.Printf("<- insight topic=%v keyPoint=%v\n", frame["topic"], frame["key_point"])
	default:
		fmt.Printf("<- %s\n", message)
	}
}
