// ABOUTME: Entry point for coven-desk, the embeddable support conversation engine
// ABOUTME: Subcommands serve the HTTP API, run a terminal widget, or inspect triage

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/2389/coven-desk/internal/api"
	"github.com/2389/coven-desk/internal/config"
	"github.com/2389/coven-desk/internal/janitor"
	"github.com/2389/coven-desk/internal/realtime"
	"github.com/2389/coven-desk/internal/routing"
	"github.com/2389/coven-desk/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                         _           _
  ___ _____   _____ _ __        __| | ___  ___| | __
 / __/ _ \ \ / / _ \ '_ \ _____ / _' |/ _ \/ __| |/ /
| (_| (_) \ V /  __/ | | |_____| (_| |  __/\__ \   <
 \___\___/ \_/ \___|_| |_|      \__,_|\___||___/_|\_\
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: coven-desk <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve            Start the HTTP API and the idle janitor")
		fmt.Println("  chat             Talk to the desk from a terminal widget")
		fmt.Println("  classify TEXT    Show the triage decision for TEXT")
		fmt.Println("  health           Check server health")
		os.Exit(1)
	}

	// A missing .env is fine
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "chat":
		err = runChat(ctx)
	case "classify":
		err = runClassify(os.Args[2:])
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when there is none.
func loadConfig() (*config.Config, string, error) {
	path := config.DefaultPath()
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		if err := cfg.Finalize(); err != nil {
			return nil, path, err
		}
		return cfg, "(defaults)", nil
	}
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

// pushChannel is both ends of a realtime transport.
type pushChannel interface {
	realtime.Transport
	realtime.Publisher
}

// openTransport connects the configured push channel. The returned func
// releases it.
func openTransport(ctx context.Context, cfg config.RealtimeConfig, logger *slog.Logger) (pushChannel, func(), error) {
	if cfg.Transport != config.TransportRedis {
		bc := realtime.NewBroadcaster(logger)
		return bc, bc.Close, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}
	return realtime.NewRedisTransport(client, logger), func() { _ = client.Close() }, nil
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Realtime:  %s\n", cfg.Realtime.Transport)
	if cfg.Janitor.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Janitor:   %s ", cfg.Janitor.Schedule)
		gray.Printf("(idle after %s)\n", cfg.Janitor.IdleTimeout)
	}
	fmt.Println()

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	transport, closeTransport, err := openTransport(ctx, cfg.Realtime, logger)
	if err != nil {
		return err
	}
	defer closeTransport()

	published := realtime.NewPublishingStore(db, transport, logger)
	server := api.New(published, transport, routing.NewRouter(cfg.Routing.Departments), logger)

	var wg sync.WaitGroup
	if cfg.Janitor.Enabled {
		j, err := janitor.New(published, cfg.Janitor.Schedule, cfg.Janitor.IdleTimeout, logger)
		if err != nil {
			return fmt.Errorf("creating janitor: %w", err)
		}
		wg.Go(func() {
			_ = j.Run(ctx)
		})
	}

	logger.Info("starting coven-desk",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"transport", cfg.Realtime.Transport,
	)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Streams end when the process is told to stop
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	serverErr := serveHTTP(ctx, httpServer, logger)

	// The original context is already canceled here
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := httpServer.Shutdown(shutdownCtx)
	wg.Wait()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// serveHTTP blocks until ctx is canceled or the server fails.
func serveHTTP(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		logger.Error("server error", "error", err)
		return err
	}
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
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
