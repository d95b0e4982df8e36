// Command krishichat is a terminal chat client for the Krishi Sahayak
// backend. It streams advisory responses token by token and keeps the
// session list in sync with the server.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/krishisahayak/krishichat/internal/dotenv"
	krishichat "github.com/krishisahayak/krishichat/sdk"
)

const (
	defaultTimeout = 90 * time.Second
)

type chatConfig struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
	Verbose  bool
}

func parseChatConfig(args []string, getenv func(string) string) (chatConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := chatConfig{}
	fs := flag.NewFlagSet("krishichat", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BaseURL, "base-url", strings.TrimSpace(getenv("KRISHI_BASE_URL")), "backend base URL including the API prefix")
	fs.StringVar(&cfg.APIToken, "token", strings.TrimSpace(getenv("KRISHI_API_TOKEN")), "bearer token (or KRISHI_API_TOKEN)")
	fs.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "per-message timeout (e.g. 90s)")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return chatConfig{}, err
	}
	if err := validateChatConfig(cfg); err != nil {
		return chatConfig{}, err
	}
	return cfg, nil
}

func validateChatConfig(cfg chatConfig) error {
	if cfg.BaseURL != "" {
		parsed, err := url.Parse(cfg.BaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return errors.New("base-url must be a valid absolute URL")
		}
		if parsed.User != nil {
			return errors.New("base-url must not include credentials")
		}
	}
	if cfg.Timeout <= 0 {
		return errors.New("timeout must be > 0")
	}
	return nil
}

func buildClientOptions(cfg chatConfig, logger *slog.Logger) []krishichat.ClientOption {
	opts := []krishichat.ClientOption{krishichat.WithLogger(logger)}
	if cfg.BaseURL != "" {
		opts = append(opts, krishichat.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIToken != "" {
		opts = append(opts, krishichat.WithTokenSource(krishichat.StaticToken(cfg.APIToken)))
	}
	return opts
}

// transcriptPrinter renders store snapshots as incremental terminal output:
// new assistant text prints as it streams, status markers print as bracketed
// lines and are replaced when real content arrives.
type transcriptPrinter struct {
	out io.Writer

	messageID  string
	printed    int
	lastStatus string
}

func (p *transcriptPrinter) render(snap krishichat.Snapshot) {
	session, ok := snap.Current()
	if !ok || len(session.Messages) == 0 {
		return
	}
	msg := session.Messages[len(session.Messages)-1]
	if msg.Role != krishichat.RoleAssistant {
		return
	}

	if msg.ID != p.messageID {
		p.messageID = msg.ID
		p.printed = 0
		p.lastStatus = ""
	}

	if msg.Kind == krishichat.MessageKindStatus {
		if msg.Content != p.lastStatus {
			p.lastStatus = msg.Content
			fmt.Fprintf(p.out, "[%s]\n", msg.Content)
		}
		return
	}
	if p.printed < len(msg.Content) {
		fmt.Fprint(p.out, msg.Content[p.printed:])
		p.printed = len(msg.Content)
	}
}

func printSessions(ctx context.Context, shared *krishichat.SharedChat, out, errOut io.Writer) {
	sessions, err := shared.Sessions(ctx)
	if err != nil {
		fmt.Fprintf(errOut, "list sessions error: %v\n", err)
		return
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "no sessions yet")
		return
	}
	current := shared.Chat.Store().Snapshot().CurrentID
	for _, session := range sessions {
		marker := " "
		if session.ID == current {
			marker = "*"
		}
		title := session.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(out, "%s %s  %s\n", marker, session.ID, title)
	}
}

func runChat(ctx context.Context, cfg chatConfig, in io.Reader, out, errOut io.Writer) error {
	if err := validateChatConfig(cfg); err != nil {
		return err
	}

	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	client := krishichat.NewClient(buildClientOptions(cfg, logger)...)
	shared := krishichat.NewSharedChat(client)
	chat := shared.Chat

	snapshots, unsubscribe := chat.Store().Subscribe()
	defer unsubscribe()
	printer := &transcriptPrinter{out: out}
	go func() {
		for snap := range snapshots {
			printer.render(snap)
		}
	}()

	fmt.Fprintln(out, "Krishi Sahayak chat. Type /new for a fresh session, /sessions to list, /open:<id> to switch, /exit to quit.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(out)
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/exit" || line == "/quit":
			fmt.Fprintln(out, "bye")
			return nil
		case line == "/new":
			id := chat.CreateNewChat()
			fmt.Fprintf(out, "new session %s\n", id)
			continue
		case line == "/sessions":
			printSessions(ctx, shared, out, errOut)
			continue
		case strings.HasPrefix(line, "/open:"):
			chat.SetCurrentSession(strings.TrimSpace(strings.TrimPrefix(line, "/open:")))
			continue
		}

		turnCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		err := chat.Submit(turnCtx, line)
		cancel()
		if err != nil {
			fmt.Fprintf(errOut, "\nchat error: %v\n", err)
			continue
		}
		fmt.Fprintln(out)
	}
}

func main() {
	if err := dotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "krishichat: %v\n", err)
		os.Exit(1)
	}

	cfg, err := parseChatConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "krishichat: %v\n", err)
		os.Exit(1)
	}

	if err := runChat(context.Background(), cfg, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "krishichat: %v\n", err)
		os.Exit(1)
	}
}
