package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// send wraps data in the event envelope and writes it as a text frame.
func send(c *websocket.Conn, event string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(map[string]interface{}{"event": event, "data": json.RawMessage(raw)})
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.TextMessage, frame)
}

const usage = `commands:
  join <entityId> <name>
  leave
  challenge <opponentEntityId>
  accept <battleId>
  decline <battleId>
  action <battleId> <json>
  end <battleId> [winnerEntityId]
  watch <entityId>
  state <entityId> <json>
  quit`

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	sid := flag.String("sid", "dev-session", "session cookie value")
	cookie := flag.String("cookie", "dm.sid", "session cookie name")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	header := http.Header{"Cookie": []string{*cookie + "=" + url.QueryEscape(*sid)}}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			log.Printf("<- RECV %s", string(message))
		}
	}()

	lines := make(chan string)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		for {
			text, err := reader.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- strings.TrimSpace(text)
		}
	}()

	log.Println("Client started.\n" + usage)

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			closeConn(c, done)
			return
		case text, ok := <-lines:
			if !ok || text == "quit" {
				closeConn(c, done)
				return
			}
			if text == "" {
				continue
			}
			if err := command(c, strings.Fields(text)); err != nil {
				log.Println("Error:", err)
			}
		}
	}
}

func command(c *websocket.Conn, args []string) error {
	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}
	rawArg := func(i int) json.RawMessage {
		s := strings.Join(args[min(i, len(args)):], " ")
		if !json.Valid([]byte(s)) {
			b, _ := json.Marshal(s)
			return b
		}
		return json.RawMessage(s)
	}

	switch args[0] {
	case "join":
		return send(c, "lobby:join", map[string]string{"entityId": arg(1), "name": arg(2)})
	case "leave":
		return send(c, "lobby:leave", nil)
	case "challenge":
		return send(c, "battle:challenge", map[string]string{"opponentId": arg(1)})
	case "accept":
		return send(c, "battle:accept", map[string]string{"battleId": arg(1)})
	case "decline":
		return send(c, "battle:decline", map[string]string{"battleId": arg(1)})
	case "action":
		return send(c, "battle:action", map[string]interface{}{"battleId": arg(1), "action": rawArg(2)})
	case "end":
		var winner *string
		if w := arg(2); w != "" {
			winner = &w
		}
		return send(c, "battle:end", map[string]interface{}{"battleId": arg(1), "winner": winner})
	case "watch":
		return send(c, "join:entity", arg(1))
	case "state":
		return send(c, "entity:update", map[string]interface{}{"entityId": arg(1), "state": rawArg(2)})
	default:
		log.Println(usage)
		return nil
	}
}

func closeConn(c *websocket.Conn, done <-chan struct{}) {
	err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		log.Println("Write close error:", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}
