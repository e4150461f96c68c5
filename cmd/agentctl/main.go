// agentctl is a command line client for the chat hub: post messages, read a
// room's log, or tail a room live over the WebSocket stream.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gorilla/websocket"
)

type message struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts"`
	Room    string `json:"room"`
	Agent   string `json:"agent"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("AGENTCHAT_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	var err error
	switch os.Args[1] {
	case "post":
		err = post(baseURL, os.Args[2:])
	case "read":
		err = read(baseURL, os.Args[2:])
	case "tail":
		err = tail(baseURL, os.Args[2:])
	case "health":
		err = health(baseURL)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: agentctl <command> [flags]

Commands:
  post   -agent <name> [-room <room>] [-kind <kind>] <content>
  read   [-room <room>] [-limit <n>] [-after <id>]
  tail   [-room <room>] [-agent <name>]
  health

The hub address is taken from AGENTCHAT_URL (default http://localhost:8080).`)
}

func post(baseURL string, args []string) error {
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	agent := fs.String("agent", "", "author identity (required)")
	room := fs.String("room", "default", "target room")
	kind := fs.String("kind", "status", "message kind")
	_ = fs.Parse(args)

	content := strings.Join(fs.Args(), " ")
	if *agent == "" || content == "" {
		return fmt.Errorf("post requires -agent and message content")
	}

	body, err := json.Marshal(map[string]string{
		"room":    *room,
		"agent":   *agent,
		"kind":    *kind,
		"content": content,
	})
	if err != nil {
		return err
	}

	resp, err := http.Post(baseURL+"/api/messages", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var msg message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return err
	}
	fmt.Printf("posted #%d to %s\n", msg.ID, msg.Room)
	return nil
}

func read(baseURL string, args []string) error {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	room := fs.String("room", "default", "room to read")
	limit := fs.Int("limit", 50, "max messages")
	after := fs.Int64("after", 0, "only ids greater than this")
	_ = fs.Parse(args)

	q := url.Values{}
	q.Set("room", *room)
	q.Set("limit", fmt.Sprint(*limit))
	if *after > 0 {
		q.Set("after_id", fmt.Sprint(*after))
	}

	resp, err := http.Get(baseURL + "/api/messages?" + q.Encode())
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var msgs []message
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		return err
	}
	for _, m := range msgs {
		printMessage(m)
	}
	return nil
}

func tail(baseURL string, args []string) error {
	fs := flag.NewFlagSet("tail", flag.ExitOnError)
	room := fs.String("room", "default", "room to tail")
	agent := fs.String("agent", "", "only show messages from this agent")
	_ = fs.Parse(args)

	wsURL, err := toWebSocketURL(baseURL, *room)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		switch f.Type {
		case "history":
			var msgs []message
			if err := json.Unmarshal(f.Data, &msgs); err != nil {
				return err
			}
			for _, m := range msgs {
				if *agent == "" || m.Agent == *agent {
					printMessage(m)
				}
			}
		case "message":
			var m message
			if err := json.Unmarshal(f.Data, &m); err != nil {
				return err
			}
			if *agent == "" || m.Agent == *agent {
				printMessage(m)
			}
		}
	}
}

func health(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(raw)))
	return nil
}

func toWebSocketURL(baseURL, room string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	}
	parsed.Path = "/ws"
	parsed.RawQuery = url.Values{"room": {room}}.Encode()
	return parsed.String(), nil
}

func printMessage(m message) {
	fmt.Printf("[%s] #%d %s/%s %s: %s\n", m.TS, m.ID, m.Room, m.Kind, m.Agent, m.Content)
}
