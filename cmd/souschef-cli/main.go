// souschef-cli drives a cooking session from the terminal: it joins a room,
// streams the microphone, prints the live transcript, recipe step, timers
// and shopping list, and reads simple commands from stdin.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"souschef/internal/bootstrap"
	"souschef/internal/config"
)

type flags struct {
	voice     string
	roomURL   string
	transport string
	apiBase   string
	noMic     bool
	logLevel  string
	upload    string
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var f flags
	flagSet := pflag.NewFlagSet("souschef-cli", pflag.ContinueOnError)
	flagSet.StringVar(&f.voice, "voice", "", "agent voice: female or male")
	flagSet.StringVar(&f.roomURL, "room-url", "", "LiveKit or relay URL (overrides SOUSCHEF_ROOM_URL)")
	flagSet.StringVar(&f.transport, "transport", "", "room transport: livekit or relay")
	flagSet.StringVar(&f.apiBase, "api-base", "", "web backend base URL (overrides SOUSCHEF_API_BASE)")
	flagSet.BoolVar(&f.noMic, "no-mic", false, "join without publishing the microphone")
	flagSet.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	flagSet.StringVar(&f.upload, "upload", "", "recipe PDF to upload before joining")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	out := newPrinter(os.Stdout)
	services, err := bootstrap.Build(out, os.Stderr, f.apply)
	if err != nil {
		return err
	}
	controller := services.Controller

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := services.Glossary.Watch(ctx); err != nil {
			services.Logger.Warn("glossary hot reload disabled", "error", err)
		}
	}()

	// Uploading does not need a room.
	if f.upload != "" {
		if err := uploadFile(ctx, controller, out, f.upload); err != nil {
			out.Println(errorStyle.Render(err.Error()))
		}
	}

	if err := controller.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = controller.Disconnect(shutdownCtx)
	}()
	out.Println(dimStyle.Render("type help for commands"))

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, ok := parseCommand(line)
			if !ok {
				continue
			}
			err := execute(ctx, controller, out, cmd)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				out.Println(errorStyle.Render(err.Error()))
			}
		}
	}
}

// apply lets explicit flags override loaded configuration.
func (f flags) apply(cfg *config.Config) {
	if voice := strings.ToLower(strings.TrimSpace(f.voice)); voice == "female" || voice == "male" {
		cfg.Room.Voice = voice
	}
	if f.roomURL != "" {
		cfg.Room.URL = f.roomURL
	}
	switch transport := strings.ToLower(strings.TrimSpace(f.transport)); transport {
	case config.TransportLiveKit, config.TransportRelay:
		cfg.Room.Transport = transport
	}
	if f.apiBase != "" {
		cfg.API.BaseURL = f.apiBase
	}
	if f.noMic {
		cfg.Audio.MicEnabled = false
	}
	switch level := strings.ToLower(f.logLevel); level {
	case "debug", "info", "warn", "error":
		cfg.Log.Level = level
	}
}
