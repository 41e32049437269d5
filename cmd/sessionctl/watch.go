package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/blogpulse/internal/config"
	"github.com/xiaot623/blogpulse/internal/domain"
	"github.com/xiaot623/blogpulse/internal/sessionapi"
)

// feedURL maps the API base URL onto the websocket feed endpoint.
func feedURL(apiURL, sessionID string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("invalid api url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/session/ws"
	if sessionID != "" {
		u.RawQuery = url.Values{"session_id": {sessionID}}.Encode()
	}
	return u.String(), nil
}

func runWatch(ctx context.Context, cfg *config.Config, args []string) error {
	fs := newFlagSet("watch")
	apiURL := fs.String("api", cfg.APIURL, "session API base URL")
	sessionID := fs.String("session", "", "only show events for this session")
	fs.Parse(args)

	addr, err := feedURL(*apiURL, *sessionID)
	if err != nil {
		return err
	}

	fmt.Printf("Connecting to %s...\n", addr)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var event domain.LifecycleEvent
		if err := json.Unmarshal(data, &event); err != nil {
			fmt.Fprintf(os.Stderr, "unmarshal error: %v\n", err)
			continue
		}
		fmt.Println(formatEvent(event))
	}
}

func formatEvent(e domain.LifecycleEvent) string {
	ts := time.UnixMilli(e.Ts).Format(time.TimeOnly)
	line := fmt.Sprintf("%s %-16s %s", ts, e.Type, e.SessionID)
	if s := e.Session; s != nil {
		switch e.Type {
		case domain.LifecycleEventCreated:
			line += fmt.Sprintf("  %s/%s/%s", s.DeviceType, s.Browser, s.OS)
			if s.IsBot {
				line += " bot"
			}
		case domain.LifecycleEventActivity:
			line += fmt.Sprintf("  heartbeats=%d", s.HeartbeatCount)
		case domain.LifecycleEventEnded:
			if s.DurationSeconds != nil {
				line += fmt.Sprintf("  %ds", *s.DurationSeconds)
			}
			if s.EndReason != "" {
				line += " (" + s.EndReason + ")"
			}
		}
	}
	return line
}

func runGet(ctx context.Context, cfg *config.Config, args []string) error {
	fs := newFlagSet("get")
	apiURL := fs.String("api", cfg.APIURL, "session API base URL")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one session id")
	}

	client := sessionapi.NewClient(*apiURL)
	session, err := client.GetSession(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return printJSON(session)
}

func runStats(ctx context.Context, cfg *config.Config, args []string) error {
	fs := newFlagSet("stats")
	apiURL := fs.String("api", cfg.APIURL, "session API base URL")
	domainName := fs.String("domain", "", "only count sessions on this domain")
	fs.Parse(args)

	stats, err := sessionapi.NewClient(*apiURL).GetStats(ctx, *domainName)
	if err != nil {
		return err
	}
	return printJSON(stats)
}
