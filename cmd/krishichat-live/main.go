// Command krishichat-live is a terminal voice client for Krishi Sahayak
// realtime advisory sessions. It mints an ephemeral session token from the
// backend, opens a duplex voice session, streams microphone audio up, and
// plays model audio back.
//
// Controls:
//
//	/mic        Toggle the microphone
//	/t <text>   Send a text message on the session
//	q           Quit
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/krishisahayak/krishichat/internal/dotenv"
	"github.com/krishisahayak/krishichat/pkg/audio"
	krishichat "github.com/krishisahayak/krishichat/sdk"
)

type liveConfig struct {
	BaseURL  string
	APIToken string
	Model    string
	System   string
	Verbose  bool
}

func parseLiveConfig(args []string, getenv func(string) string) (liveConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := liveConfig{}
	fs := flag.NewFlagSet("krishichat-live", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BaseURL, "base-url", strings.TrimSpace(getenv("KRISHI_BASE_URL")), "backend base URL including the API prefix")
	fs.StringVar(&cfg.APIToken, "token", strings.TrimSpace(getenv("KRISHI_API_TOKEN")), "bearer token (or KRISHI_API_TOKEN)")
	fs.StringVar(&cfg.Model, "model", "", "voice model override")
	fs.StringVar(&cfg.System, "system", strings.TrimSpace(getenv("SYSTEM_PROMPT")), "system instruction for the session")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return liveConfig{}, err
	}
	if cfg.APIToken == "" {
		return liveConfig{}, errors.New("a bearer token is required (set KRISHI_API_TOKEN or -token)")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg liveConfig) error {
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []krishichat.ClientOption{
		krishichat.WithLogger(logger),
		krishichat.WithTokenSource(krishichat.StaticToken(cfg.APIToken)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, krishichat.WithBaseURL(cfg.BaseURL))
	}
	client := krishichat.NewClient(opts...)

	sessionToken, err := client.LiveTokens.LiveToken(ctx, true)
	if err != nil {
		return fmt.Errorf("mint live token: %w", err)
	}

	player, err := audio.NewPlayer(audio.PlayerConfig{})
	if err != nil {
		return err
	}
	defer player.Destroy()
	// Playback backends can start suspended until explicitly resumed.
	if err := player.Resume(); err != nil {
		return fmt.Errorf("resume speaker: %w", err)
	}

	controller := krishichat.NewLiveController(krishichat.LiveControllerConfig{
		Transport:         &krishichat.GeminiLiveTransport{},
		Sink:              player,
		Model:             cfg.Model,
		SystemInstruction: cfg.System,
		Logger:            logger,
	})
	defer controller.Stop()

	if err := controller.Connect(ctx, sessionToken); err != nil {
		return fmt.Errorf("connect live session: %w", err)
	}
	fmt.Println("Live session connected. /mic toggles the microphone, /t <text> sends text, q quits.")

	recorder := audio.NewRecorder(func(frame string) {
		_ = controller.SendMedia(krishichat.MediaChunk{
			MimeType: audio.CaptureMimeType,
			Data:     frame,
		})
	})
	defer recorder.Stop()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "q" || line == "/quit":
			return nil
		case line == "/mic":
			if recorder.Recording() {
				recorder.Stop()
				fmt.Println("microphone off")
				continue
			}
			if err := recorder.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "microphone error: %v\n", err)
				continue
			}
			fmt.Println("microphone on")
		case strings.HasPrefix(line, "/t "):
			text := strings.TrimSpace(strings.TrimPrefix(line, "/t "))
			if text == "" {
				continue
			}
			if err := controller.SendText(text); err != nil {
				fmt.Fprintf(os.Stderr, "send error: %v\n", err)
			}
		case line == "/state":
			state := controller.State()
			if lastErr := controller.LastError(); lastErr != "" {
				fmt.Printf("state: %s (last error: %s)\n", state, lastErr)
				continue
			}
			fmt.Printf("state: %s\n", state)
		default:
			fmt.Println("unknown command (use /mic, /t <text>, /state, or q)")
		}
	}
}

func main() {
	if err := dotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "krishichat-live: %v\n", err)
		os.Exit(1)
	}

	cfg, err := parseLiveConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "krishichat-live: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nshutting down")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "krishichat-live: %v\n", err)
		os.Exit(1)
	}
}
