// Package livekitroom joins LiveKit rooms with the LiveKit Go SDK. Data
// packets, transcription segments, agent RPCs and the agent's state attribute
// are mapped onto ports.Room. The microphone is published as an Ogg/Opus
// reader track, so capture must be configured for that encoding.
package livekitroom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	lksdk "github.com/livekit/server-sdk-go/v2"

	"souschef/internal/ports"
)

// Config controls the LiveKit connection.
type Config struct {
	URL        string
	RPCTimeout time.Duration
	Logger     *slog.Logger
}

// Connector implements ports.RoomConnector for LiveKit.
type Connector struct {
	cfg Config
}

func NewConnector(cfg Config) *Connector {
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Connector{cfg: cfg}
}

type joinResult struct {
	room *lksdk.Room
	err  error
}

// Connect joins the room with the issued token. Remote media is not
// subscribed; transcriptions and data packets arrive regardless. ctx bounds
// the join only.
func (c *Connector) Connect(ctx context.Context, creds ports.Credentials, handler ports.RoomHandler) (ports.Room, error) {
	if strings.TrimSpace(creds.Token) == "" {
		return nil, errors.New("room token is empty")
	}
	base := creds.ServerURL
	if strings.TrimSpace(base) == "" {
		base = c.cfg.URL
	}
	serverURL, err := signalURL(base)
	if err != nil {
		return nil, err
	}

	r := newRoom(handler, c.cfg)
	joined := make(chan joinResult, 1)
	go func() {
		lkRoom, err := lksdk.ConnectToRoomWithToken(serverURL, creds.Token, r.callbacks(), lksdk.WithAutoSubscribe(false))
		joined <- joinResult{room: lkRoom, err: err}
	}()

	var result joinResult
	select {
	case <-ctx.Done():
		go func() {
			if late := <-joined; late.room != nil {
				late.room.Disconnect()
			}
		}()
		return nil, fmt.Errorf("failed to join livekit room: %w", ctx.Err())
	case result = <-joined:
	}
	if result.err != nil {
		return nil, fmt.Errorf("failed to join livekit room: %w", result.err)
	}

	r.attach(result.room)
	c.cfg.Logger.Info("joined room", "room", creds.Room, "identity", r.LocalIdentity(), "participants", len(r.Participants()))
	return r, nil
}

// signalURL accepts http(s) or ws(s) URLs and returns the websocket form the
// SDK signals over.
func signalURL(base string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", errors.New("livekit URL is not configured")
	}
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid livekit URL: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", fmt.Errorf("invalid livekit URL scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", errors.New("livekit URL has no host")
	}
	return parsed.String(), nil
}
