package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"souschef/internal/ports"
)

type tokenResponse struct {
	Token string `json:"token"`
	Room  string `json:"room"`
	Voice string `json:"voice"`
	Error string `json:"error"`
}

// Issue asks the backend to provision a room for voice and returns the
// credentials to join it. The relay URL comes from local configuration.
func (c *Client) Issue(ctx context.Context, voice string) (ports.Credentials, error) {
	query := url.Values{}
	if voice = strings.TrimSpace(voice); voice != "" {
		query.Set("voice", voice)
	}

	resp, err := c.get(ctx, c.endpoint("/api/token", query))
	if err != nil {
		return ports.Credentials{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ports.Credentials{}, &StatusError{Endpoint: "token", StatusCode: resp.StatusCode, Message: errorBody(resp.Body)}
	}

	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ports.Credentials{}, fmt.Errorf("parse token response: %w", err)
	}
	if payload.Error != "" {
		return ports.Credentials{}, fmt.Errorf("token endpoint: %s", payload.Error)
	}
	if payload.Token == "" {
		return ports.Credentials{}, errors.New("token endpoint returned no token")
	}

	c.logger.Debug("issued room token", "room", payload.Room, "voice", payload.Voice)
	return ports.Credentials{
		ServerURL: c.roomURL,
		Token:     payload.Token,
		Room:      payload.Room,
	}, nil
}
