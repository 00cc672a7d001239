package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"souschef/internal/ports"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{BaseURL: server.URL + "/", RoomURL: "ws://relay.test/rtc", HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "ftp://host", "http://", "::"} {
		if _, err := NewClient(Config{BaseURL: raw}); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestIssueReturnsCredentials(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/token" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("voice"); got != "male" {
			t.Errorf("unexpected voice: %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": "jwt", "room": "souschef-male-1", "voice": "male"})
	})

	creds, err := client.Issue(context.Background(), "male")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	want := ports.Credentials{ServerURL: "ws://relay.test/rtc", Token: "jwt", Room: "souschef-male-1"}
	if creds != want {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestIssueSurfacesBackendError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "credentials not configured"})
	})

	_, err := client.Issue(context.Background(), "female")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected status error, got %v", err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError || statusErr.Message != "credentials not configured" {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}
}

func TestIssueRejectsEmptyToken(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"room": "r"})
	})

	if _, err := client.Issue(context.Background(), "female"); err == nil {
		t.Fatalf("expected empty token error")
	}
}

func TestUploadSendsMultipartFile(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/upload" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file field: %v", err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no file"})
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "pasta.pdf" || string(data) != "%PDF-1.4" {
			t.Errorf("unexpected upload: %s %q", header.Filename, data)
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "filename": "pasta.pdf", "message": "stored"})
	})

	result, err := client.Upload(context.Background(), "pasta.pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if !result.Success || result.Filename != "pasta.pdf" || result.Message != "stored" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestUploadRejectionIsUnsuccessfulResult(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Only PDF files are allowed"})
	})

	result, err := client.Upload(context.Background(), "pasta.pdf", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("expected structured rejection, got %v", err)
	}
	if result.Success || result.Error != "Only PDF files are allowed" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestUploadNonJSONFailure(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := client.Upload(context.Background(), "pasta.pdf", strings.NewReader("x"))
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestLookupReturnsVideo(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/youtube" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "Dice the onion & garlic" {
			t.Errorf("unexpected query: %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]string{"videoId": "abc123", "title": "Dicing", "thumbnail": "https://img/1.jpg"})
	})

	video, err := client.Lookup(context.Background(), "Dice the onion & garlic")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if video.VideoID != "abc123" || video.Title != "Dicing" || video.Thumbnail != "https://img/1.jpg" {
		t.Fatalf("unexpected video: %+v", video)
	}
}

func TestLookupNotFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "No videos found"})
	})

	if _, err := client.Lookup(context.Background(), "stir"); !errors.Is(err, ports.ErrNoVideo) {
		t.Fatalf("expected ErrNoVideo, got %v", err)
	}
	if _, err := client.Lookup(context.Background(), "   "); !errors.Is(err, ports.ErrNoVideo) {
		t.Fatalf("expected ErrNoVideo for blank instruction, got %v", err)
	}
}

func TestLookupServerError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "YouTube API key not configured"})
	})

	_, err := client.Lookup(context.Background(), "stir")
	if err == nil || errors.Is(err, ports.ErrNoVideo) {
		t.Fatalf("expected server error, got %v", err)
	}
	if !strings.Contains(err.Error(), "YouTube API key not configured") {
		t.Fatalf("expected backend message, got %v", err)
	}
}
