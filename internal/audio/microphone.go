// Package audio captures the local microphone by running ffmpeg, producing
// raw PCM or an Ogg/Opus stream. The stream is published to the room as the
// user's voice track.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"souschef/internal/ports"
)

const (
	defaultStartupGrace = 250 * time.Millisecond
	defaultStopGrace    = 1200 * time.Millisecond
	stderrTailBytes     = 4096
)

// Options tune the ffmpeg microphone.
type Options struct {
	Command      string
	StartupGrace time.Duration
	StopGrace    time.Duration
	Logger       *slog.Logger
}

// Microphone starts ffmpeg capture sessions.
type Microphone struct {
	command      string
	startupGrace time.Duration
	stopGrace    time.Duration
	logger       *slog.Logger
}

func NewMicrophone(opts Options) *Microphone {
	if strings.TrimSpace(opts.Command) == "" {
		opts.Command = "ffmpeg"
	}
	if opts.StartupGrace <= 0 {
		opts.StartupGrace = defaultStartupGrace
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = defaultStopGrace
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Microphone{
		command:      opts.Command,
		startupGrace: opts.StartupGrace,
		stopGrace:    opts.StopGrace,
		logger:       opts.Logger,
	}
}

// Start launches ffmpeg and waits out a short grace period so a missing
// device fails here instead of on the first read.
func (m *Microphone) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cfg = withDefaults(cfg, runtime.GOOS)
	cmd := exec.CommandContext(ctx, m.command, captureArgs(cfg)...)
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("microphone stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", m.command, err)
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
		close(exited)
	}()

	grace := time.NewTimer(m.startupGrace)
	defer grace.Stop()
	select {
	case err := <-exited:
		detail := stderr.String()
		if err != nil {
			return nil, fmt.Errorf("microphone exited before capture started: %w: %s", err, detail)
		}
		return nil, fmt.Errorf("microphone exited before capture started: %s", detail)
	case <-grace.C:
	}

	m.logger.Info("microphone started",
		"format", cfg.InputFormat,
		"device", cfg.InputDevice,
		"sample_rate", cfg.SampleRate,
		"encoding", cfg.Encoding,
		"channels", cfg.Channels,
	)
	return &captureSession{
		stdout:    stdout,
		stderr:    stderr,
		process:   cmd.Process,
		exited:    exited,
		stopGrace: m.stopGrace,
		logger:    m.logger,
	}, nil
}

func withDefaults(cfg ports.AudioConfig, goos string) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.Encoding == "" {
		cfg.Encoding = ports.AudioEncodingPCM
	}
	if cfg.InputFormat == "" || cfg.InputDevice == "" {
		format, device := platformInput(goos)
		if cfg.InputFormat == "" {
			cfg.InputFormat = format
		}
		if cfg.InputDevice == "" {
			cfg.InputDevice = device
		}
	}
	return cfg
}

func platformInput(goos string) (format, device string) {
	switch goos {
	case "darwin":
		return "avfoundation", ":0"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

func captureArgs(cfg ports.AudioConfig) []string {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
	}
	if cfg.Encoding == ports.AudioEncodingOggOpus {
		// One Opus frame per Ogg page keeps latency at the frame size.
		return append(args,
			"-c:a", "libopus",
			"-b:a", "32k",
			"-application", "voip",
			"-frame_duration", "20",
			"-page_duration", "20000",
			"-f", "ogg",
			"-",
		)
	}
	return append(args, "-f", "s16le", "-")
}

type captureSession struct {
	stdout    io.ReadCloser
	stderr    *tailBuffer
	process   *os.Process
	exited    <-chan error
	stopGrace time.Duration
	logger    *slog.Logger

	bytesRead atomic.Int64
	stopOnce  sync.Once
	stopErr   error
}

func (s *captureSession) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	s.bytesRead.Add(int64(n))
	return n, err
}

func (s *captureSession) Close() error {
	return s.Stop()
}

// Stop interrupts ffmpeg, escalating to kill after the grace period. It is
// safe to call more than once.
func (s *captureSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		grace := time.NewTimer(s.stopGrace)
		defer grace.Stop()
		select {
		case err, ok := <-s.exited:
			if ok {
				s.stopErr = ignoreExitStatus(err)
			}
		case <-grace.C:
			if s.process != nil {
				_ = s.process.Kill()
			}
			if err, ok := <-s.exited; ok {
				s.stopErr = ignoreExitStatus(err)
			}
		}

		if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) && s.stopErr == nil {
			s.stopErr = err
		}
		if s.stopErr != nil {
			if detail := s.stderr.String(); detail != "" {
				s.stopErr = fmt.Errorf("%w: %s", s.stopErr, detail)
			}
		}
		s.logger.Info("microphone stopped", "bytes", s.bytesRead.Load(), "error", s.stopErr)
	})
	return s.stopErr
}

// ignoreExitStatus treats a non-zero exit as a normal stop; ffmpeg exits
// with 255 on interrupt.
func ignoreExitStatus(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
