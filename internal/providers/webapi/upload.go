package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"souschef/internal/domain"
)

type uploadResponse struct {
	Success  *bool  `json:"success"`
	Filename string `json:"filename"`
	Message  string `json:"message"`
	Error    string `json:"error"`
}

// Upload posts content as the multipart field "file". A structured rejection
// is returned as an unsuccessful result rather than an error.
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader) (domain.UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, content); err != nil {
		return domain.UploadResult{}, fmt.Errorf("read upload content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return domain.UploadResult{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/upload", nil), &buf)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.UploadResult{}, fmt.Errorf("read upload response: %w", err)
	}
	var payload uploadResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		if resp.StatusCode >= 300 {
			return domain.UploadResult{}, &StatusError{Endpoint: "upload", StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
		}
		return domain.UploadResult{}, fmt.Errorf("parse upload response: %w", err)
	}

	ok := resp.StatusCode < 300 && payload.Error == ""
	if payload.Success != nil {
		ok = ok && *payload.Success
	}
	result := domain.UploadResult{
		Success:  ok,
		Filename: payload.Filename,
		Message:  payload.Message,
		Error:    payload.Error,
	}
	if !ok && result.Error == "" {
		result.Error = fmt.Sprintf("upload returned status %d", resp.StatusCode)
	}
	c.logger.Debug("upload finished", "filename", filename, "success", result.Success, "status", resp.StatusCode)
	return result, nil
}
