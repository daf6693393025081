// ABOUTME: Entry point for the coven-chat line-mode client
// ABOUTME: Loads config, resolves the token, and runs the interactive loop against the backend

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/backend"
	"github.com/2389/coven-chat/internal/chat"
	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/logging"
)

// expiryWarning is how close to expiry a token must be before we mention it.
const expiryWarning = 24 * time.Hour

func main() {
	configPath := flag.String("config", "", "Config file (default $COVEN_CHAT_CONFIG or ~/.config/coven/chat.yaml)")
	server := flag.String("server", "", "Backend URL (overrides config)")
	threadID := flag.String("thread", "", "Thread ID to open on start")
	verbose := flag.Bool("v", false, "Log at the configured level instead of warnings only")
	flag.Parse()

	if err := run(*configPath, *server, *threadID, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, server, threadID string, verbose bool) error {
	cfg, err := loadConfig(configPath, server)
	if err != nil {
		return err
	}

	// Log lines would interleave with the conversation, so keep them quiet by default
	logCfg := cfg.Logging
	if !verbose {
		logCfg.Level = "warn"
	}
	logger := logging.Setup(logCfg, os.Stderr)
	slog.SetDefault(logger)

	token := cfg.ResolveToken()
	client := backend.NewClient(cfg.Backend.URL,
		backend.WithToken(token),
		backend.WithRequestTimeout(cfg.Backend.RequestTimeout),
		backend.WithLogger(logger),
	)

	// SIGTERM quits; SIGINT is handled by the loop so it can abort a reply
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	out := &syncWriter{w: os.Stdout}
	lines := readLines(os.Stdin)
	app := chat.New(client,
		chat.WithSuggestions(cfg.Chat.Suggestions),
		chat.WithConfirmer(newLineConfirmer(lines, out)),
		chat.WithLogger(logger),
	)
	defer app.Close()

	printHeader(out, client.BaseURL(), token)

	r := newREPL(app, lines, interrupts, out)
	r.start(ctx, threadID)
	r.loop(ctx)

	fmt.Fprintln(out, "Goodbye!")
	return nil
}

// loadConfig reads the config file and applies the -server override.
// An explicit -config path must exist; the default path may be missing.
func loadConfig(path, server string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOrDefault(config.Path())
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if server != "" {
		cfg.Backend.URL = server
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid -server: %w", err)
		}
	}
	return cfg, nil
}

func printHeader(w io.Writer, url, token string) {
	fmt.Fprintf(w, "coven-chat connected to %s\n", url)

	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	switch {
	case token == "":
		fmt.Fprintln(w, "Auth: none (set COVEN_TOKEN for authentication)")
	default:
		fmt.Fprintln(w, "Auth: bearer token configured")
		exp, ok, err := auth.ExpiresAt(token)
		switch {
		case err != nil:
			yellow.Fprintln(w, "Warning: token is not a JWT; the backend may reject it")
		case !ok:
		case time.Until(exp) <= 0:
			red.Fprintf(w, "Warning: token expired at %s\n", exp.Local().Format(time.RFC1123))
		case time.Until(exp) < expiryWarning:
			yellow.Fprintf(w, "Warning: token expires in %s\n", time.Until(exp).Round(time.Minute))
		}
	}

	fmt.Fprintln(w, "Type a message and press Enter. /help for commands. Ctrl+C aborts a reply or quits.")
	fmt.Fprintln(w)
}
