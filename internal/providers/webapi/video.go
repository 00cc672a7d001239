package webapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"souschef/internal/domain"
	"souschef/internal/ports"
)

// Lookup finds a how-to video for instruction. A 404 or an empty match is
// ports.ErrNoVideo.
func (c *Client) Lookup(ctx context.Context, instruction string) (domain.Video, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return domain.Video{}, ports.ErrNoVideo
	}

	resp, err := c.get(ctx, c.endpoint("/api/youtube", url.Values{"q": {instruction}}))
	if err != nil {
		return domain.Video{}, fmt.Errorf("video request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Video{}, ports.ErrNoVideo
	case resp.StatusCode != http.StatusOK:
		return domain.Video{}, &StatusError{Endpoint: "video", StatusCode: resp.StatusCode, Message: errorBody(resp.Body)}
	}

	var video domain.Video
	if err := json.NewDecoder(resp.Body).Decode(&video); err != nil {
		return domain.Video{}, fmt.Errorf("parse video response: %w", err)
	}
	if video.VideoID == "" {
		return domain.Video{}, ports.ErrNoVideo
	}
	return video, nil
}
