package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"souschef/internal/bootstrap"
	"souschef/internal/config"
	"souschef/internal/domain"
	"souschef/internal/usecase"
)

const (
	eventView  = "souschef:view"
	eventError = "souschef:error"
)

// App is the Wails application root. It binds user actions to the session
// controller and implements ports.EventSink for the webview.
type App struct {
	ctx context.Context

	controller *usecase.SessionController
	cfg        config.Config
	bootErr    error
}

// UploadReply is what the UI learns about an upload.
type UploadReply struct {
	Filename string `json:"filename"`
	Uploaded bool   `json:"uploaded"`
	Ingest   string `json:"ingest"`
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, os.Stderr)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	go func() {
		if err := services.Glossary.Watch(ctx); err != nil {
			services.Logger.Warn("glossary hot reload disabled", "error", err)
		}
	}()
	a.ViewChanged(a.controller.View())
}

func (a *App) shutdown(ctx context.Context) {
	if a.controller == nil {
		return
	}
	_ = a.controller.Disconnect(ctx)
}

// Connect joins a fresh room session.
func (a *App) Connect() (domain.SessionView, error) {
	if err := a.requireReady(); err != nil {
		return domain.SessionView{}, err
	}
	if err := a.controller.Connect(a.ctx); err != nil {
		return a.controller.View(), err
	}
	return a.controller.View(), nil
}

// Disconnect ends the session and discards its state.
func (a *App) Disconnect() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return ignoreNoSession(a.controller.Disconnect(a.ctx))
}

// GetView returns the current consolidated view.
func (a *App) GetView() domain.SessionView {
	if a.controller == nil {
		return domain.SessionView{Connection: domain.ConnectionStateDisconnected}
	}
	return a.controller.View()
}

func (a *App) NextStep() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.NextStep(a.ctx)
}

func (a *App) PreviousStep() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.PreviousStep(a.ctx)
}

func (a *App) FinishCooking() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.FinishCooking()
}

func (a *App) RemoveTimer(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.RemoveTimer(id)
}

func (a *App) SetShoppingQuantity(id string, quantity int) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.SetShoppingQuantity(id, quantity)
}

func (a *App) RemoveShoppingItem(id string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.RemoveShoppingItem(id)
}

func (a *App) ClearShoppingList() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.ClearShoppingList()
}

// SetMuted mutes or unmutes the published microphone.
func (a *App) SetMuted(muted bool) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.SetMuted(a.ctx, muted)
}

// UploadRecipe uploads a recipe PDF the frontend already read.
func (a *App) UploadRecipe(filename string, content []byte) (UploadReply, error) {
	if err := a.requireReady(); err != nil {
		return UploadReply{}, err
	}
	outcome, err := a.controller.Upload(a.ctx, filename, bytes.NewReader(content))
	return uploadReply(outcome), err
}

// ChooseAndUploadRecipe opens a native file picker and uploads the choice.
// Cancelling the dialog is not an error.
func (a *App) ChooseAndUploadRecipe() (UploadReply, error) {
	if err := a.requireReady(); err != nil {
		return UploadReply{}, err
	}
	path, err := runtime.OpenFileDialog(a.ctx, runtime.OpenDialogOptions{
		Title:   "Add a recipe",
		Filters: []runtime.FileFilter{{DisplayName: "PDF documents (*.pdf)", Pattern: "*.pdf"}},
	})
	if err != nil || path == "" {
		return UploadReply{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		a.SessionError(domain.ErrorCodeUpload, err.Error())
		return UploadReply{}, err
	}
	defer file.Close()

	outcome, err := a.controller.Upload(a.ctx, filepath.Base(path), file)
	return uploadReply(outcome), err
}

// ClearCookbook removes all ingested recipes and returns the RPC outcome.
func (a *App) ClearCookbook() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	result, err := a.controller.ClearCookbook(a.ctx)
	return string(result.Outcome), err
}

// StepVideo finds a how-to video for the current cooking step.
func (a *App) StepVideo() (domain.VideoResult, error) {
	if err := a.requireReady(); err != nil {
		return domain.VideoResult{}, err
	}
	return a.controller.StepVideo(a.ctx)
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"apiBase":      a.cfg.API.BaseURL,
		"roomUrl":      a.cfg.Room.URL,
		"transport":    a.cfg.Room.Transport,
		"voice":        a.cfg.Room.Voice,
		"glossaryFile": a.cfg.Glossary.Path,
		"microphone":   fmt.Sprintf("%t", a.cfg.Audio.MicEnabled),
		"audioInput":   a.cfg.Audio.InputDevice,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// ViewChanged pushes the consolidated view to the frontend.
func (a *App) ViewChanged(view domain.SessionView) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventView, view)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func uploadReply(outcome usecase.UploadOutcome) UploadReply {
	return UploadReply{
		Filename: outcome.Filename,
		Uploaded: outcome.Uploaded,
		Ingest:   string(outcome.Reload.Outcome),
	}
}

func ignoreNoSession(err error) error {
	if errors.Is(err, usecase.ErrNoActiveSession) {
		return nil
	}
	return err
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeConnect:
		return "Could not connect to the kitchen"
	case domain.ErrorCodeUpload:
		return "Recipe upload failed"
	case domain.ErrorCodeIngest:
		return "Recipe uploaded but not indexed yet"
	case domain.ErrorCodeClear:
		return "Could not clear the cookbook"
	case domain.ErrorCodePublish:
		return "Microphone could not be published"
	case domain.ErrorCodeAudio:
		return "Microphone issue"
	case domain.ErrorCodeVideo:
		return "Video lookup failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
