package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"souschef/internal/domain"
	"souschef/internal/ports"
	"souschef/internal/protocol"
)

var ErrUnsupportedFile = errors.New("only pdf files are supported")

// UploadOutcome reports both phases of an upload. Uploaded stays true even
// when the follow-up reload fails; the file is already stored.
type UploadOutcome struct {
	Filename string
	Uploaded bool
	Result   domain.UploadResult
	Reload   RPCResult
}

// uploadSequencer runs transfer then reload. The transient ready hold is
// owned by the controller since it outlives this call.
type uploadSequencer struct {
	uploader ports.Uploader
	control  controlChannel
	logger   *slog.Logger
}

func newUploadSequencer(uploader ports.Uploader, control controlChannel, logger *slog.Logger) uploadSequencer {
	return uploadSequencer{uploader: uploader, control: control, logger: logger}
}

// Run transfers content and asks the agent to re-index it. onPhase is invoked
// before each phase starts.
func (s uploadSequencer) Run(
	ctx context.Context,
	room ports.Room,
	filename string,
	content io.Reader,
	onPhase func(domain.UploadState),
) (UploadOutcome, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	outcome := UploadOutcome{Filename: name}

	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return outcome, fmt.Errorf("%w: %s", ErrUnsupportedFile, name)
	}
	if s.uploader == nil {
		return outcome, errors.New("upload endpoint is not configured")
	}

	onPhase(domain.UploadStateUploading)
	result, err := s.uploader.Upload(ctx, name, content)
	if err != nil {
		s.logger.Error("upload failed", "filename", name, "error", err)
		return outcome, fmt.Errorf("upload %s: %w", name, err)
	}
	if !result.Success {
		detail := strings.TrimSpace(result.Error)
		if detail == "" {
			detail = "upload rejected"
		}
		s.logger.Error("upload rejected", "filename", name, "error", detail)
		outcome.Result = result
		return outcome, fmt.Errorf("upload %s: %s", name, detail)
	}
	if result.Filename != "" {
		outcome.Filename = result.Filename
	}
	outcome.Result = result
	outcome.Uploaded = true

	onPhase(domain.UploadStateProcessing)
	outcome.Reload = s.control.Invoke(ctx, room, protocol.MethodReloadCookbook, protocol.ReloadPayload{Filename: outcome.Filename})
	s.logger.Info("upload sequence finished", "filename", outcome.Filename, "outcome", outcome.Reload.Outcome)
	return outcome, nil
}
