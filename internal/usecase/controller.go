package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"souschef/internal/domain"
	"souschef/internal/ports"
	"souschef/internal/protocol"
)

var (
	ErrNoActiveSession  = errors.New("no active session")
	ErrUploadInProgress = errors.New("upload already in progress")
)

// Config controls session behavior.
type Config struct {
	Voice           string
	Audio           ports.AudioConfig
	MicEnabled      bool
	TimerTick       time.Duration
	UploadReadyHold time.Duration
	Now             func() time.Time
}

// SessionController owns the room connection and every per-session store.
// All store mutations run under one lock; network calls never do.
type SessionController struct {
	connector ports.RoomConnector
	tokens    ports.TokenIssuer
	videos    ports.VideoLookup
	audio     ports.AudioCapture
	glossary  ports.TextTransformer
	events    ports.EventSink
	logger    *slog.Logger
	cfg       Config

	dispatcher eventDispatcher
	control    controlChannel
	uploads    uploadSequencer

	mu      sync.Mutex
	emitMu  sync.Mutex
	current *activeSession
	upload  uploadTracker
}

func NewSessionController(
	connector ports.RoomConnector,
	tokens ports.TokenIssuer,
	uploader ports.Uploader,
	videos ports.VideoLookup,
	audio ports.AudioCapture,
	glossary ports.TextTransformer,
	events ports.EventSink,
	logger *slog.Logger,
	cfg Config,
) *SessionController {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TimerTick <= 0 {
		cfg.TimerTick = time.Second
	}
	if cfg.UploadReadyHold <= 0 {
		cfg.UploadReadyHold = 2 * time.Second
	}
	if strings.TrimSpace(cfg.Voice) == "" {
		cfg.Voice = "female"
	}

	control := newControlChannel(logger)
	return &SessionController{
		connector:  connector,
		tokens:     tokens,
		videos:     videos,
		audio:      audio,
		glossary:   glossary,
		events:     events,
		logger:     logger,
		cfg:        cfg,
		dispatcher: newEventDispatcher(logger, cfg.Now),
		control:    control,
		uploads:    newUploadSequencer(uploader, control, logger),
		upload:     uploadTracker{status: domain.UploadStatus{State: domain.UploadStateIdle}},
	}
}

// Connect creates a fresh session and joins the room. An existing session is
// torn down first.
func (c *SessionController) Connect(ctx context.Context) error {
	c.mu.Lock()
	previous := c.current
	c.current = nil
	c.mu.Unlock()
	if previous != nil {
		c.teardown(ctx, previous, true)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	active := &activeSession{
		id:         uuid.NewString(),
		cancel:     cancel,
		connection: domain.ConnectionStateConnecting,
		agent:      domain.AgentStateIdle,
		videoCache: make(map[string]domain.VideoResult),
		stores: sessionStores{
			transcript: newTranscriptReconciler(c.glossary, c.cfg.Now),
			timers:     newTimerRegistry(),
			shopping:   newShoppingList(),
		},
	}
	c.mu.Lock()
	c.current = active
	c.mu.Unlock()
	c.emitCurrent()

	logger := c.logger.With("session", active.id)
	creds, err := c.tokens.Issue(ctx, c.cfg.Voice)
	if err != nil {
		return c.abortConnect(active, fmt.Errorf("issue token: %w", err))
	}

	room, err := c.connector.Connect(ctx, creds, roomEvents{controller: c, session: active})
	if err != nil {
		return c.abortConnect(active, fmt.Errorf("join room: %w", err))
	}

	c.mu.Lock()
	if c.current != active {
		c.mu.Unlock()
		_ = room.Disconnect(context.Background())
		cancel()
		return fmt.Errorf("connect: %w", ErrNoActiveSession)
	}
	active.room = room
	active.localIdentity = room.LocalIdentity()
	active.connection = domain.ConnectionStateConnected
	if active.connectedAt.IsZero() {
		active.connectedAt = c.cfg.Now()
	}
	active.stopTicker = make(chan struct{})
	active.tickerDone = make(chan struct{})
	c.mu.Unlock()

	go c.runTicker(active)
	logger.Info("session connected", "room", creds.Room, "identity", active.localIdentity)

	if c.cfg.MicEnabled && c.audio != nil {
		c.publishMicrophone(sessionCtx, active, room)
	}
	c.emitCurrent()
	return nil
}

func (c *SessionController) abortConnect(active *activeSession, err error) error {
	c.logger.Error("connect failed", "session", active.id, "error", err)
	c.mu.Lock()
	if c.current == active {
		c.current = nil
	}
	c.mu.Unlock()
	active.cancel()
	c.events.SessionError(domain.ErrorCodeConnect, err.Error())
	c.emitCurrent()
	return err
}

// publishMicrophone failures leave the session connected without a mic.
func (c *SessionController) publishMicrophone(ctx context.Context, active *activeSession, room ports.Room) {
	capture, err := c.audio.Start(ctx, c.cfg.Audio)
	if err != nil {
		c.logger.Error("microphone capture failed", "session", active.id, "error", err)
		c.events.SessionError(domain.ErrorCodeAudio, err.Error())
		return
	}
	track, err := room.PublishAudio(ctx, capture)
	if err != nil {
		_ = capture.Stop()
		c.logger.Error("publish microphone failed", "session", active.id, "error", err)
		c.events.SessionError(domain.ErrorCodePublish, err.Error())
		return
	}

	c.mu.Lock()
	if c.current != active {
		c.mu.Unlock()
		_ = track.Stop()
		_ = capture.Stop()
		return
	}
	active.capture = capture
	active.track = track
	c.mu.Unlock()
}

// Disconnect leaves the room and discards all session state.
func (c *SessionController) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	active := c.current
	c.current = nil
	c.mu.Unlock()
	if active == nil {
		return ErrNoActiveSession
	}

	c.teardown(ctx, active, true)
	c.emitCurrent()
	return nil
}

// teardown releases media first, then best-effort clears remote material,
// then leaves. Every failure here is swallowed.
func (c *SessionController) teardown(ctx context.Context, active *activeSession, clearRemote bool) {
	logger := c.logger.With("session", active.id)

	c.mu.Lock()
	c.upload.reset()
	room := active.room
	track := active.track
	capture := active.capture
	stopTicker := active.stopTicker
	tickerDone := active.tickerDone
	active.stopTicker = nil
	active.connection = domain.ConnectionStateDisconnected
	c.mu.Unlock()

	if stopTicker != nil {
		close(stopTicker)
		<-tickerDone
	}

	if track != nil {
		if err := track.Stop(); err != nil {
			logger.Debug("stop microphone track", "error", err)
		}
		if room != nil {
			if err := room.Unpublish(ctx, track); err != nil {
				logger.Debug("unpublish microphone track", "error", err)
			}
		}
	}
	if capture != nil {
		if err := capture.Stop(); err != nil {
			logger.Debug("stop microphone capture", "error", err)
		}
	}

	if room != nil {
		if clearRemote {
			c.control.quiet().Invoke(ctx, room, protocol.MethodClearCookbookSilent, nil)
		}
		if err := room.Disconnect(ctx); err != nil {
			logger.Debug("leave room", "error", err)
		}
	}
	active.cancel()
	logger.Info("session ended")
}

func (c *SessionController) onConnectionState(bound *activeSession, state domain.ConnectionState) {
	c.mu.Lock()
	if c.current != bound {
		c.mu.Unlock()
		return
	}
	if state == domain.ConnectionStateDisconnected && bound.room != nil {
		c.current = nil
		c.mu.Unlock()
		c.logger.Info("room closed remotely", "session", bound.id)
		// The transport is delivering this callback; leaving from here would
		// wait on itself.
		go func() {
			c.teardown(context.Background(), bound, false)
			c.emitCurrent()
		}()
		return
	}
	c.mu.Unlock()

	_ = c.update(bound, func(active *activeSession) (bool, error) {
		if active.connection == state {
			return false, nil
		}
		active.connection = state
		if state == domain.ConnectionStateConnected && active.connectedAt.IsZero() {
			active.connectedAt = c.cfg.Now()
		}
		return true, nil
	})
}

func (c *SessionController) runTicker(active *activeSession) {
	defer close(active.tickerDone)
	ticker := time.NewTicker(c.cfg.TimerTick)
	defer ticker.Stop()

	for {
		select {
		case <-active.stopTicker:
			return
		case <-ticker.C:
			_ = c.update(active, func(a *activeSession) (bool, error) {
				return a.connection == domain.ConnectionStateConnected || a.stores.timers.Len() > 0, nil
			})
		}
	}
}

// View returns the consolidated view of the current session.
func (c *SessionController) View() domain.SessionView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked(c.current)
}

// NextStep advances the plan optimistically and tells the agent.
func (c *SessionController) NextStep(ctx context.Context) error {
	return c.navigate(ctx, protocol.StepNext)
}

// PreviousStep moves the plan back optimistically and tells the agent.
func (c *SessionController) PreviousStep(ctx context.Context) error {
	return c.navigate(ctx, protocol.StepPrevious)
}

func (c *SessionController) navigate(ctx context.Context, direction protocol.StepDirection) error {
	var (
		move stepMove
		room ports.Room
		id   string
	)
	err := c.update(nil, func(active *activeSession) (bool, error) {
		next, m, err := active.stores.cooking.LocalStep(direction)
		if err != nil {
			return false, err
		}
		active.stores.cooking = next
		move, room, id = m, active.room, active.id
		return true, nil
	})
	if err != nil {
		return err
	}

	payload, err := protocol.EncodeStepChange(move.Direction, move.Index)
	if err != nil {
		return err
	}
	if room == nil {
		return nil
	}
	// The local move stands even if the agent never hears about it; its next
	// step_update will correct any disagreement.
	if err := room.PublishData(ctx, payload, ports.PublishOptions{Reliable: true}); err != nil {
		c.logger.Error("publish step change failed", "session", id, "action", move.Direction, "step_index", move.Index, "error", err)
	}
	return nil
}

// FinishCooking leaves cooking mode. The plan stays available.
func (c *SessionController) FinishCooking() error {
	return c.update(nil, func(active *activeSession) (bool, error) {
		if !active.stores.cooking.cookingMode {
			return false, nil
		}
		active.stores.cooking = active.stores.cooking.Finished()
		return true, nil
	})
}

// RemoveTimer dismisses one timer.
func (c *SessionController) RemoveTimer(id string) error {
	return c.update(nil, func(active *activeSession) (bool, error) {
		return active.stores.timers.Remove(id), nil
	})
}

// SetShoppingQuantity edits an item locally; zero or less removes it.
func (c *SessionController) SetShoppingQuantity(id string, quantity int) error {
	return c.update(nil, func(active *activeSession) (bool, error) {
		return active.stores.shopping.SetQuantity(id, quantity), nil
	})
}

func (c *SessionController) RemoveShoppingItem(id string) error {
	return c.update(nil, func(active *activeSession) (bool, error) {
		return active.stores.shopping.Remove(id), nil
	})
}

func (c *SessionController) ClearShoppingList() error {
	return c.update(nil, func(active *activeSession) (bool, error) {
		return active.stores.shopping.Clear(), nil
	})
}

// SetMuted mutes or unmutes the published microphone track.
func (c *SessionController) SetMuted(ctx context.Context, muted bool) error {
	c.mu.Lock()
	active := c.current
	if active == nil {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	track := active.track
	c.mu.Unlock()

	if track != nil {
		if err := track.SetMuted(muted); err != nil {
			c.logger.Error("toggle microphone failed", "session", active.id, "muted", muted, "error", err)
			c.events.SessionError(domain.ErrorCodeAudio, err.Error())
			return err
		}
	}
	return c.update(active, func(a *activeSession) (bool, error) {
		if a.muted == muted {
			return false, nil
		}
		a.muted = muted
		return true, nil
	})
}

// Upload transfers a recipe source file and asks the agent to ingest it.
// It works without a session; the reload is then skipped as agent-not-found.
// A failed reload after a successful transfer still counts as uploaded.
func (c *SessionController) Upload(ctx context.Context, filename string, content io.Reader) (UploadOutcome, error) {
	var (
		room ports.Room
		gen  int
	)
	err := c.updateUpload(func(u *uploadTracker) (bool, error) {
		if u.busy() {
			return false, ErrUploadInProgress
		}
		u.cancelReadyHold()
		gen = u.gen
		if c.current != nil {
			room = c.current.room
		}
		return false, nil
	})
	if err != nil {
		return UploadOutcome{}, err
	}

	setPhase := func(state domain.UploadState) {
		_ = c.updateUpload(func(u *uploadTracker) (bool, error) {
			if u.gen != gen {
				return false, nil
			}
			u.status.State = state
			u.status.Error = ""
			return true, nil
		})
	}

	outcome, err := c.uploads.Run(ctx, room, filename, content, setPhase)
	if err != nil {
		_ = c.updateUpload(func(u *uploadTracker) (bool, error) {
			u.status.State = domain.UploadStateIdle
			u.status.Error = err.Error()
			return true, nil
		})
		c.events.SessionError(domain.ErrorCodeUpload, err.Error())
		return outcome, err
	}

	_ = c.updateUpload(func(u *uploadTracker) (bool, error) {
		u.status.State = domain.UploadStateSucceeded
		u.status.Error = ""
		u.status.FileCount++
		u.status.LastFilename = outcome.Filename
		if u.gen == gen {
			u.readyTimer = time.AfterFunc(c.cfg.UploadReadyHold, func() {
				c.endReadyHold(gen)
			})
		}
		return true, nil
	})

	switch outcome.Reload.Outcome {
	case RPCTimeout, RPCFailed:
		c.events.SessionError(domain.ErrorCodeIngest, fmt.Sprintf("%s was uploaded but the assistant did not load it: %v", outcome.Filename, outcome.Reload.Err))
	}
	return outcome, nil
}

func (c *SessionController) endReadyHold(gen int) {
	_ = c.updateUpload(func(u *uploadTracker) (bool, error) {
		if u.gen != gen || u.status.State != domain.UploadStateSucceeded {
			return false, nil
		}
		u.status.State = domain.UploadStateIdle
		u.readyTimer = nil
		return true, nil
	})
}

// ClearCookbook asks the agent to drop all ingested material. The local file
// count is reset whatever the agent answers, and with no session it is only
// reset locally.
func (c *SessionController) ClearCookbook(ctx context.Context) (RPCResult, error) {
	var room ports.Room
	err := c.updateUpload(func(u *uploadTracker) (bool, error) {
		if u.busy() {
			return false, ErrUploadInProgress
		}
		u.cancelReadyHold()
		u.status.State = domain.UploadStateClearing
		u.status.Error = ""
		if c.current != nil {
			room = c.current.room
		}
		return true, nil
	})
	if err != nil {
		return RPCResult{}, err
	}

	result := c.control.Invoke(ctx, room, protocol.MethodClearCookbook, nil)

	_ = c.updateUpload(func(u *uploadTracker) (bool, error) {
		u.status.State = domain.UploadStateIdle
		u.status.FileCount = 0
		u.status.LastFilename = ""
		return true, nil
	})
	switch result.Outcome {
	case RPCTimeout, RPCFailed:
		c.events.SessionError(domain.ErrorCodeClear, fmt.Sprintf("clear cookbook: %v", result.Err))
	}
	return result, nil
}

// StepVideo finds a how-to video for the current step. A missing video is a
// normal result with Found=false.
func (c *SessionController) StepVideo(ctx context.Context) (domain.VideoResult, error) {
	c.mu.Lock()
	active := c.current
	if active == nil {
		c.mu.Unlock()
		return domain.VideoResult{}, ErrNoActiveSession
	}
	plan := active.stores.cooking.plan
	if plan == nil {
		c.mu.Unlock()
		return domain.VideoResult{}, ErrNoPlan
	}
	step, ok := plan.CurrentStep()
	if !ok {
		c.mu.Unlock()
		return domain.VideoResult{}, ErrStepOutOfRange
	}
	instruction := strings.TrimSpace(step.Instruction)
	if cached, ok := active.videoCache[instruction]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	result := domain.VideoResult{Instruction: instruction}
	if c.videos == nil || instruction == "" {
		return result, nil
	}

	video, err := c.videos.Lookup(ctx, instruction)
	switch {
	case errors.Is(err, ports.ErrNoVideo):
	case err != nil:
		c.logger.Error("video lookup failed", "session", active.id, "error", err)
		c.events.SessionError(domain.ErrorCodeVideo, err.Error())
		return result, err
	default:
		result.Found = true
		result.Video = video
	}

	c.mu.Lock()
	if c.current == active {
		active.videoCache[instruction] = result
	}
	c.mu.Unlock()
	return result, nil
}

// update runs fn against the current session under the lock and emits a view
// when fn reports a change. A non-nil bound restricts fn to that session.
func (c *SessionController) update(bound *activeSession, fn func(*activeSession) (bool, error)) error {
	c.mu.Lock()
	active := c.current
	if active == nil || (bound != nil && active != bound) {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	changed, err := fn(active)
	if !changed {
		c.mu.Unlock()
		return err
	}
	c.emitLocked()
	return err
}

// updateUpload runs fn against the upload status, with or without a session.
func (c *SessionController) updateUpload(fn func(*uploadTracker) (bool, error)) error {
	c.mu.Lock()
	changed, err := fn(&c.upload)
	if !changed {
		c.mu.Unlock()
		return err
	}
	c.emitLocked()
	return err
}

func (c *SessionController) emitCurrent() {
	c.mu.Lock()
	c.emitLocked()
}

// emitLocked must be called with mu held and returns with it released. The
// emit lock is taken first so views leave in the order they were built.
func (c *SessionController) emitLocked() {
	view := c.viewLocked(c.current)
	c.emitMu.Lock()
	c.mu.Unlock()
	c.events.ViewChanged(view)
	c.emitMu.Unlock()
}

func (c *SessionController) viewLocked(active *activeSession) domain.SessionView {
	if active == nil {
		return domain.SessionView{
			Connection:   domain.ConnectionStateDisconnected,
			Agent:        domain.AgentStateIdle,
			Upload:       c.upload.status,
			Transcript:   []domain.TranscriptEntry{},
			Timers:       []domain.Timer{},
			ShoppingList: []domain.ShoppingItem{},
			Cooking:      cookingState{}.View(),
		}
	}

	now := c.cfg.Now()
	view := domain.SessionView{
		SessionID:    active.id,
		Connection:   active.connection,
		Agent:        active.agent,
		AgentActive:  active.agent == domain.AgentStateListening || active.agent == domain.AgentStateSpeaking,
		Muted:        active.muted,
		Upload:       c.upload.status,
		Transcript:   active.stores.transcript.Entries(),
		Timers:       active.stores.timers.Snapshot(now),
		ShoppingList: active.stores.shopping.Items(),
		Cooking:      active.stores.cooking.View(),
	}
	if active.connection == domain.ConnectionStateConnected && !active.connectedAt.IsZero() {
		view.CallDuration = now.Sub(active.connectedAt).Truncate(time.Second)
	}
	if latest, ok := active.stores.transcript.Latest(); ok {
		view.CurrentLine = &latest
	}
	if previous, ok := active.stores.transcript.Previous(); ok {
		view.PreviousLine = &previous
	}
	return view
}
