package bootstrap

import (
	"io"
	"log/slog"

	"souschef/internal/audio"
	"souschef/internal/config"
	"souschef/internal/glossary"
	"souschef/internal/ports"
	"souschef/internal/providers/livekitroom"
	"souschef/internal/providers/roomrelay"
	"souschef/internal/providers/webapi"
	"souschef/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Config     config.Config
	Logger     *slog.Logger
	Glossary   *glossary.Live
}

// Option adjusts the loaded configuration before anything is built.
type Option func(*config.Config)

// Build wires all backend dependencies for the current runtime. Logs go to
// logOutput; nil discards them.
func Build(eventSink ports.EventSink, logOutput io.Writer, opts ...Option) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := NewLogger(cfg.Log, logOutput)
	if cfg.File != "" {
		logger.Debug("loaded config file", "path", cfg.File)
	}

	terms, err := glossary.NewLive(cfg.Glossary.Path, cfg.Glossary.IterationLimit, logger.With("component", "glossary"))
	if err != nil {
		return Services{}, err
	}
	logger.Debug("loaded glossary", "path", cfg.Glossary.Path, "substitutions", terms.Len())

	api, err := webapi.NewClient(webapi.Config{
		BaseURL: cfg.API.BaseURL,
		RoomURL: cfg.Room.URL,
		Logger:  logger.With("component", "webapi"),
	})
	if err != nil {
		return Services{}, err
	}

	connector, encoding := newConnector(cfg, logger)
	logger.Debug("room transport", "transport", cfg.Room.Transport, "url", cfg.Room.URL)

	microphone := audio.NewMicrophone(audio.Options{
		Command: cfg.Audio.RecorderCommand,
		Logger:  logger.With("component", "audio"),
	})

	controller := usecase.NewSessionController(
		connector,
		api,
		api,
		api,
		microphone,
		terms,
		eventSink,
		logger,
		usecase.Config{
			Voice: cfg.Room.Voice,
			Audio: ports.AudioConfig{
				SampleRate:  cfg.Audio.SampleRate,
				Channels:    cfg.Audio.Channels,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
				Encoding:    encoding,
			},
			MicEnabled:      cfg.Audio.MicEnabled,
			TimerTick:       cfg.Session.TimerTick,
			UploadReadyHold: cfg.Session.UploadReadyHold,
		},
	)

	return Services{Controller: controller, Config: cfg, Logger: logger, Glossary: terms}, nil
}

// newConnector picks the room transport and the microphone encoding it
// publishes.
func newConnector(cfg config.Config, logger *slog.Logger) (ports.RoomConnector, ports.AudioEncoding) {
	if cfg.Room.Transport == config.TransportRelay {
		return roomrelay.NewConnector(roomrelay.Config{
			URL:        cfg.Room.URL,
			RPCTimeout: cfg.Room.RPCTimeout,
			ChunkSize:  cfg.Audio.ChunkSize,
			Logger:     logger.With("component", "roomrelay"),
		}), ports.AudioEncodingPCM
	}
	return livekitroom.NewConnector(livekitroom.Config{
		URL:        cfg.Room.URL,
		RPCTimeout: cfg.Room.RPCTimeout,
		Logger:     logger.With("component", "livekit"),
	}), ports.AudioEncodingOggOpus
}

// NewLogger builds the process logger from config.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = io.Discard
	}
	opts := &slog.HandlerOptions{Level: logLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
