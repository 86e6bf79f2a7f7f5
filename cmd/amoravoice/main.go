package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amoralabs/amora/internal/protocol"
	"github.com/amoralabs/amora/internal/voiceclient"
)

type options struct {
	baseURL       string
	userID        string
	playerCommand string
	noCapture     bool
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "amoravoice: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "amoravoice: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:5000", "Amora server base URL")
	flag.StringVar(&cfg.userID, "user-id", "", "profile to converse as (required)")
	flag.StringVar(&cfg.playerCommand, "player", "", "audio player command (default: afplay on macOS, mpg123 elsewhere)")
	flag.BoolVar(&cfg.noCapture, "no-capture", false, "disable voice capture, text entry still works")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if strings.TrimSpace(cfg.userID) == "" {
		return options{}, fmt.Errorf("user-id is required")
	}
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := dialEvents(ctx, cfg.baseURL, cfg.userID)
	if err != nil {
		return err
	}
	defer conn.Close()

	manual := voiceclient.NewManualEngine()
	var engine voiceclient.CaptureEngine = manual
	if cfg.noCapture {
		engine = voiceclient.UnsupportedEngine{}
	}

	coordinator := voiceclient.NewCoordinator(voiceclient.NewExecPlayer(cfg.playerCommand))
	machine := voiceclient.NewMachine(engine, coordinator,
		func(transcript string) {
			if err := postMessage(ctx, cfg.baseURL, cfg.userID, transcript); err != nil {
				log.Printf("send failed: %v", err)
			}
		},
		func(msg string) {
			fmt.Println(msg)
		},
	)

	go readEvents(ctx, conn, cfg.baseURL, machine)

	fmt.Println("commands: /talk /stop /send /cancel /quit — other input becomes your transcript while talking")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit":
			return nil
		case "/talk":
			if err := machine.StartCapture(ctx); err != nil {
				log.Printf("capture unavailable: %v", err)
				continue
			}
			fmt.Println("listening")
		case "/stop":
			switch machine.StopCapture() {
			case voiceclient.StatePendingSend:
				fmt.Printf("heard: %q — /send or /cancel\n", machine.Transcript())
			default:
				fmt.Println("nothing captured")
			}
		case "/send":
			if !machine.ConfirmSend() {
				fmt.Println("nothing pending")
			}
		case "/cancel":
			if machine.Cancel() {
				fmt.Println("discarded")
			}
		default:
			if machine.State() == voiceclient.StateListening {
				manual.Push(line)
			} else {
				fmt.Println("not listening — /talk first")
			}
		}
	}
	return scanner.Err()
}

func dialEvents(ctx context.Context, baseURL, userID string) (*websocket.Conn, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/api/chat/" + userID + "/events"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial events stream: %w", err)
	}
	return conn, nil
}

// readEvents pumps server turn events into the console and, when a turn
// carries audio, into the playback machine.
func readEvents(ctx context.Context, conn *websocket.Conn, baseURL string, machine *voiceclient.Machine) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("events stream closed: %v", err)
			}
			return
		}
		msgType, payload, err := protocol.Unmarshal(data)
		if err != nil {
			log.Printf("bad event: %v", err)
			continue
		}
		switch msgType {
		case protocol.TypeTurnCompleted:
			turn, err := protocol.UnmarshalPayload[protocol.TurnCompleted](payload)
			if err != nil {
				log.Printf("bad turn event: %v", err)
				continue
			}
			fmt.Printf("companion: %s\n", turn.Message)
			if turn.AudioURL != "" {
				if err := machine.AudioArrived(ctx, baseURL+turn.AudioURL); err != nil {
					log.Printf("playback failed: %v", err)
				}
			}
		case protocol.TypeErrorEvent:
			ev, err := protocol.UnmarshalPayload[protocol.ErrorEvent](payload)
			if err != nil {
				continue
			}
			log.Printf("server error %s: %s", ev.Code, ev.Detail)
		}
	}
}

func postMessage(ctx context.Context, baseURL, userID, message string) error {
	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/chat/"+userID, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chat returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	return nil
}
