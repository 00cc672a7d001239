package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"souschef/internal/domain"
)

func newTestSequencer(uploader *fakeUploader) uploadSequencer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newUploadSequencer(uploader, newControlChannel(logger), logger)
}

func TestUploadSequencerPhases(t *testing.T) {
	t.Parallel()

	room := newFakeRoom("me")
	room.addAgent()
	uploader := &fakeUploader{result: domain.UploadResult{Success: true, Filename: "stored.pdf"}}

	var phases []domain.UploadState
	outcome, err := newTestSequencer(uploader).Run(context.Background(), room, "Recipe.PDF", strings.NewReader("%PDF"), func(state domain.UploadState) {
		phases = append(phases, state)
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(phases) != 2 || phases[0] != domain.UploadStateUploading || phases[1] != domain.UploadStateProcessing {
		t.Fatalf("unexpected phases: %v", phases)
	}
	if outcome.Filename != "stored.pdf" || !outcome.Uploaded || !outcome.Reload.OK() {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if rpcs := room.snapshotRPCs(); rpcs[0].Payload != `{"filename":"stored.pdf"}` {
		t.Fatalf("expected reload with stored filename, got %s", rpcs[0].Payload)
	}
}

func TestUploadSequencerRejectedResult(t *testing.T) {
	t.Parallel()

	room := newFakeRoom("me")
	room.addAgent()
	uploader := &fakeUploader{result: domain.UploadResult{Success: false, Error: "file too large"}}

	var phases []domain.UploadState
	outcome, err := newTestSequencer(uploader).Run(context.Background(), room, "big.pdf", strings.NewReader("%PDF"), func(state domain.UploadState) {
		phases = append(phases, state)
	})
	if err == nil || !strings.Contains(err.Error(), "file too large") {
		t.Fatalf("expected rejection error, got %v", err)
	}
	if outcome.Uploaded {
		t.Fatalf("expected uploaded=false")
	}
	if len(phases) != 1 {
		t.Fatalf("expected processing phase to be skipped, got %v", phases)
	}
	if len(room.snapshotRPCs()) != 0 {
		t.Fatalf("expected no reload after rejection")
	}
}

func TestUploadSequencerValidatesExtension(t *testing.T) {
	t.Parallel()

	uploader := &fakeUploader{result: domain.UploadResult{Success: true}}
	for _, name := range []string{"notes.txt", "pdf", "scan.pdf.png", ""} {
		_, err := newTestSequencer(uploader).Run(context.Background(), nil, name, strings.NewReader(""), func(domain.UploadState) {
			t.Fatalf("phase callback should not run for %q", name)
		})
		if !errors.Is(err, ErrUnsupportedFile) {
			t.Fatalf("expected ErrUnsupportedFile for %q, got %v", name, err)
		}
	}
	if len(uploader.snapshotNames()) != 0 {
		t.Fatalf("expected no transfers")
	}
}
