// ABOUTME: Entry point for coven-chat-backend, a development chat backend
// ABOUTME: Serves the chat HTTP API over SQLite or memory storage and mints bearer tokens

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/auth"
	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/devserver"
	"github.com/2389/coven-chat/internal/logging"
	"github.com/2389/coven-chat/internal/store"
)

// Version is set at build time.
var version = "dev"

const banner = `
                                        _           _
  ___ _____   _____ _ __          ___| |__   __ _| |_
 / __/ _ \ \ / / _ \ '_ \ _____  / __| '_ \ / _' | __|
| (_| (_) \ V /  __/ | | |_____|| (__| | | | (_| | |_
 \___\___/ \_/ \___|_| |_|       \___|_| |_|\__,_|\__|
`

func main() {
	if len(os.Args) < 2 {
		usage(os.Stdout)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "token":
		err = runToken(os.Args[2:], os.Stdout)
	case "health":
		err = runHealth(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: coven-chat-backend <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                 Start the development backend")
	fmt.Fprintln(w, "  token -sub NAME       Print a bearer token signed with devserver.jwt_secret")
	fmt.Fprintln(w, "  health                Check that a running backend answers")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Every command accepts -config PATH.")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// openStore returns SQLite storage when a database path is configured and
// memory storage otherwise.
func openStore(cfg config.DevServerConfig, logger *slog.Logger) (store.Store, error) {
	if cfg.Database == "" {
		return store.NewMemoryStore(), nil
	}
	st, err := store.NewSQLiteStore(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return st, nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Config file")
	addr := fs.String("addr", "", "Listen address (overrides devserver.addr)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.DevServer.Addr = *addr
	}

	logger := logging.Setup(cfg.Logging, os.Stdout)

	st, err := openStore(cfg.DevServer, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := []devserver.Option{
		devserver.WithChunkDelay(cfg.DevServer.ChunkDelay),
		devserver.WithLogger(logger),
	}
	if cfg.DevServer.JWTSecret != "" {
		opts = append(opts, devserver.WithVerifier(auth.NewJWTVerifier([]byte(cfg.DevServer.JWTSecret))))
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.DevServer.Addr)
	green.Print("    ▶ ")
	if cfg.DevServer.Database != "" {
		fmt.Printf("Storage:   %s\n", cfg.DevServer.Database)
	} else {
		fmt.Print("Storage:   ")
		yellow.Println("memory (lost on exit)")
	}
	green.Print("    ▶ ")
	if cfg.DevServer.JWTSecret != "" {
		fmt.Println("Auth:      bearer JWT")
	} else {
		fmt.Print("Auth:      ")
		yellow.Println("none")
	}
	fmt.Println()

	logger.Info("starting coven-chat-backend",
		"addr", cfg.DevServer.Addr,
		"database", cfg.DevServer.Database,
		"auth", cfg.DevServer.JWTSecret != "",
	)

	return devserver.New(st, opts...).Run(ctx, cfg.DevServer.Addr)
}

func runToken(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	configPath := fs.String("config", "", "Config file")
	subject := fs.String("sub", "", "Principal the token is issued to")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "Token lifetime (0 for no expiry)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return fmt.Errorf("-sub is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.DevServer.JWTSecret == "" {
		return fmt.Errorf("devserver.jwt_secret is not set; the backend would not check tokens")
	}

	token, err := auth.NewJWTVerifier([]byte(cfg.DevServer.JWTSecret)).Generate(*subject, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintln(w, token)
	return nil
}

func runHealth(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	configPath := fs.String("config", "", "Config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/health", cfg.DevServer.Addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
