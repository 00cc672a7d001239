// Package roomrelay joins realtime rooms through a websocket relay. The relay
// bridges the media server: it forwards data packets, transcription segments,
// participant changes and agent RPCs as JSON frames, and accepts the local
// microphone as binary PCM frames.
//
// A LiveKit server does not speak this protocol. The relay is a separate
// bridge process implementing the frames in wire.go, and none ships with this
// module; it is selected with SOUSCHEF_ROOM_TRANSPORT=relay. Connecting to
// LiveKit directly is done by package livekitroom.
package roomrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"souschef/internal/ports"
)

// Config controls the relay connection.
type Config struct {
	URL              string
	RPCTimeout       time.Duration
	HandshakeTimeout time.Duration
	ChunkSize        int
	Logger           *slog.Logger
	Dialer           *websocket.Dialer
}

// Connector implements ports.RoomConnector over the relay.
type Connector struct {
	cfg Config
}

func NewConnector(cfg Config) *Connector {
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = 10 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Connector{cfg: cfg}
}

// Connect dials the relay, joins the room, and starts delivering callbacks to
// handler one at a time. ctx bounds the handshake only.
func (c *Connector) Connect(ctx context.Context, creds ports.Credentials, handler ports.RoomHandler) (ports.Room, error) {
	if strings.TrimSpace(creds.Token) == "" {
		return nil, errors.New("room token is empty")
	}
	base := creds.ServerURL
	if strings.TrimSpace(base) == "" {
		base = c.cfg.URL
	}
	wsURL, err := relayURL(base)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+creds.Token)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer cancel()
	conn, _, err := c.cfg.Dialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to room relay: %w", err)
	}

	joined, err := handshake(dialCtx, conn, creds)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	r := newRoom(conn, handler, joined, c.cfg)
	go r.readLoop()
	c.cfg.Logger.Info("joined room", "room", creds.Room, "identity", joined.Identity, "participants", len(joined.Participants))
	return r, nil
}

func handshake(ctx context.Context, conn *websocket.Conn, creds ports.Credentials) (serverFrame, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
		defer func() {
			_ = conn.SetReadDeadline(time.Time{})
			_ = conn.SetWriteDeadline(time.Time{})
		}()
	}

	if err := conn.WriteJSON(joinFrame{Op: opJoin, Token: creds.Token, Room: creds.Room}); err != nil {
		return serverFrame{}, fmt.Errorf("failed to send join: %w", err)
	}
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return serverFrame{}, fmt.Errorf("failed to read join reply: %w", err)
		}
		var frame serverFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}
		switch frame.Op {
		case opJoined:
			if strings.TrimSpace(frame.Identity) == "" {
				return serverFrame{}, errors.New("relay joined without an identity")
			}
			return frame, nil
		case opError:
			message := strings.TrimSpace(frame.Message)
			if message == "" {
				message = "relay rejected join"
			}
			return serverFrame{}, errors.New(message)
		}
	}
}

// relayURL accepts http(s) or ws(s) URLs and returns the websocket form.
func relayURL(base string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", errors.New("room relay URL is not configured")
	}
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid room relay URL: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", fmt.Errorf("invalid room relay URL scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", errors.New("room relay URL has no host")
	}
	return parsed.String(), nil
}
