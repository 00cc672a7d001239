package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config stores runtime configuration for the cooking assistant client.
type Config struct {
	API      APIConfig
	Room     RoomConfig
	Audio    AudioConfig
	Glossary GlossaryConfig
	Session  SessionConfig
	Log      LogConfig

	// File is the configuration file that was read, if any.
	File string
}

type APIConfig struct {
	BaseURL string
}

// Room transports.
const (
	TransportLiveKit = "livekit"
	TransportRelay   = "relay"
)

type RoomConfig struct {
	// Transport is TransportLiveKit, or TransportRelay for a websocket bridge
	// that speaks the roomrelay protocol.
	Transport  string
	URL        string
	Voice      string
	RPCTimeout time.Duration
}

type AudioConfig struct {
	MicEnabled      bool
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	ChunkSize       int
}

type GlossaryConfig struct {
	Path           string
	IterationLimit int
}

type SessionConfig struct {
	TimerTick       time.Duration
	UploadReadyHold time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// fileConfig is the optional YAML file layout. Environment variables take
// precedence over anything set here.
type fileConfig struct {
	APIBase       string `yaml:"api_base"`
	RoomURL       string `yaml:"room_url"`
	RoomTransport string `yaml:"room_transport"`
	Voice         string `yaml:"voice"`
	Audio         struct {
		MicEnabled  *bool  `yaml:"mic_enabled"`
		Command     string `yaml:"command"`
		InputFormat string `yaml:"input_format"`
		InputDevice string `yaml:"input_device"`
		SampleRate  int    `yaml:"sample_rate"`
		Channels    int    `yaml:"channels"`
		ChunkSize   int    `yaml:"chunk_size"`
	} `yaml:"audio"`
	Glossary struct {
		File           string `yaml:"file"`
		IterationLimit int    `yaml:"iteration_limit"`
	} `yaml:"glossary"`
	Session struct {
		TimerTickMS   int `yaml:"timer_tick_ms"`
		UploadReadyMS int `yaml:"upload_ready_ms"`
		RPCTimeoutMS  int `yaml:"rpc_timeout_ms"`
	} `yaml:"session"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load resolves configuration from an optional YAML file, environment
// variables and defaults, in increasing order of precedence.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}

	file, path, err := readFile(home)
	if err != nil {
		return Config{}, err
	}

	glossaryPath := firstNonEmpty(
		os.Getenv("SOUSCHEF_GLOSSARY_FILE"),
		file.Glossary.File,
		filepath.Join(home, ".config", "souschef", "glossary.rules"),
	)

	cfg := Config{
		API: APIConfig{
			BaseURL: envOrDefault("SOUSCHEF_API_BASE", firstNonEmpty(file.APIBase, "http://localhost:3000")),
		},
		Room: RoomConfig{
			URL: firstNonEmpty(
				os.Getenv("SOUSCHEF_ROOM_URL"),
				os.Getenv("LIVEKIT_URL"),
				file.RoomURL,
				"ws://localhost:7880",
			),
			Transport:  strings.ToLower(envOrDefault("SOUSCHEF_ROOM_TRANSPORT", firstNonEmpty(file.RoomTransport, TransportLiveKit))),
			Voice:      strings.ToLower(envOrDefault("SOUSCHEF_VOICE", firstNonEmpty(file.Voice, "female"))),
			RPCTimeout: envOrDefaultMillis("SOUSCHEF_RPC_TIMEOUT_MS", file.Session.RPCTimeoutMS, 10000),
		},
		Audio: AudioConfig{
			MicEnabled:      envOrDefaultBool("SOUSCHEF_MIC_ENABLED", boolOr(file.Audio.MicEnabled, true)),
			RecorderCommand: envOrDefault("SOUSCHEF_FFMPEG_COMMAND", firstNonEmpty(file.Audio.Command, "ffmpeg")),
			InputFormat:     envOrDefault("SOUSCHEF_AUDIO_INPUT_FORMAT", strings.TrimSpace(file.Audio.InputFormat)),
			InputDevice:     envOrDefault("SOUSCHEF_AUDIO_INPUT_DEVICE", strings.TrimSpace(file.Audio.InputDevice)),
			SampleRate:      envOrDefaultInt("SOUSCHEF_SAMPLE_RATE", intOr(file.Audio.SampleRate, 16000)),
			Channels:        envOrDefaultInt("SOUSCHEF_CHANNELS", intOr(file.Audio.Channels, 1)),
			ChunkSize:       envOrDefaultInt("SOUSCHEF_AUDIO_CHUNK_SIZE", intOr(file.Audio.ChunkSize, 4096)),
		},
		Glossary: GlossaryConfig{
			Path:           glossaryPath,
			IterationLimit: envOrDefaultInt("SOUSCHEF_GLOSSARY_ITERATION_LIMIT", intOr(file.Glossary.IterationLimit, 30)),
		},
		Session: SessionConfig{
			TimerTick:       envOrDefaultMillis("SOUSCHEF_TIMER_TICK_MS", file.Session.TimerTickMS, 1000),
			UploadReadyHold: envOrDefaultMillis("SOUSCHEF_UPLOAD_READY_MS", file.Session.UploadReadyMS, 2000),
		},
		Log: LogConfig{
			Level:  strings.ToLower(envOrDefault("SOUSCHEF_LOG_LEVEL", firstNonEmpty(file.Log.Level, "info"))),
			Format: strings.ToLower(envOrDefault("SOUSCHEF_LOG_FORMAT", firstNonEmpty(file.Log.Format, "text"))),
		},
		File: path,
	}

	cfg.normalize()
	return cfg, nil
}

// normalize clamps invalid values back to their defaults.
func (c *Config) normalize() {
	if c.Room.Voice != "female" && c.Room.Voice != "male" {
		c.Room.Voice = "female"
	}
	if c.Room.Transport != TransportRelay {
		c.Room.Transport = TransportLiveKit
	}
	if c.Room.RPCTimeout <= 0 {
		c.Room.RPCTimeout = 10 * time.Second
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.ChunkSize < 256 {
		c.Audio.ChunkSize = 4096
	}
	if c.Glossary.IterationLimit <= 0 {
		c.Glossary.IterationLimit = 30
	}
	if c.Session.TimerTick <= 0 {
		c.Session.TimerTick = time.Second
	}
	if c.Session.UploadReadyHold <= 0 {
		c.Session.UploadReadyHold = 2 * time.Second
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		c.Log.Level = "info"
	}
	if c.Log.Format != "json" {
		c.Log.Format = "text"
	}
}

// readFile loads SOUSCHEF_CONFIG, or the default location when it exists. An
// explicitly named file that is missing is an error.
func readFile(home string) (fileConfig, string, error) {
	path := strings.TrimSpace(os.Getenv("SOUSCHEF_CONFIG"))
	explicit := path != ""
	if !explicit {
		path = filepath.Join(home, ".config", "souschef", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return fileConfig{}, "", nil
		}
		return fileConfig{}, "", fmt.Errorf("read config %s: %w", path, err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fileConfig{}, "", fmt.Errorf("parse config %s: %w", path, err)
	}
	return file, path, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func intOr(value int, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultMillis(key string, fileValue int, fallback int) time.Duration {
	return time.Duration(envOrDefaultInt(key, intOr(fileValue, fallback))) * time.Millisecond
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
