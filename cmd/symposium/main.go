// ABOUTME: Entry point for the symposium conversation server
// ABOUTME: Wires store, engine, dispatcher, and streaming transports together

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/symposium/internal/analysis"
	"github.com/2389/symposium/internal/auth"
	"github.com/2389/symposium/internal/bus"
	"github.com/2389/symposium/internal/config"
	"github.com/2389/symposium/internal/engine"
	"github.com/2389/symposium/internal/model"
	"github.com/2389/symposium/internal/push"
	"github.com/2389/symposium/internal/rpc"
	"github.com/2389/symposium/internal/socket"
	"github.com/2389/symposium/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                             _
  ___ _   _ _ __ ___  _ __   ___  ___(_)_   _ _ __ ___
 / __| | | | '_ ' _ \| '_ \ / _ \/ __| | | | | '_ ' _ \
 \__ \ |_| | | | | | | |_) | (_) \__ \ | |_| | | | | | |
 |___/\__, |_| |_| |_| .__/ \___/|___/_|\__,_|_| |_| |_|
      |___/          |_|
`

// getConfigPath returns the path to the symposium config file.
// Priority: SYMPOSIUM_CONFIG env var > XDG_CONFIG_HOME/symposium/config.yaml > ~/.config/symposium/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SYMPOSIUM_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "symposium", "config.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: symposium <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the conversation server")
		fmt.Println("  init     Write a starter config file")
		fmt.Println("  health   Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
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

// loadConfig reads the config file, falling back to defaults when none exists.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return config.Load(path)
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	fmt.Println()

	logger.Info("starting symposium",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"database", cfg.Database.Path,
	)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	b := bus.New(logger)

	gatewayURL := cfg.Gateway.URL
	if gatewayURL == "" {
		gatewayURL = config.Default().Gateway.URL
	}
	gw := model.NewHTTPGateway(gatewayURL, nil)

	policy := model.DefaultRetryPolicy()
	if cfg.Conversation.RetryMaxAttempts > 0 {
		policy.MaxAttempts = cfg.Conversation.RetryMaxAttempts
	}
	if cfg.Conversation.RetryBaseDelay > 0 {
		policy.BaseDelay = cfg.Conversation.RetryBaseDelay
	}

	eng := engine.New(st, b, gw, engine.Options{
		RetryPolicy: policy,
		CallTimeout: cfg.Conversation.CallTimeout,
		TurnDelay:   cfg.Conversation.TurnDelay,
		Logger:      logger,
	})

	analyzer := analysis.New(st, b, gw, logger)

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		verifier = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	} else {
		logger.Warn("auth disabled: no jwt_secret configured")
	}

	dispatcher := rpc.NewDispatcher(st, eng, b, analyzer, logger)
	dispatcher.SetSessionDefaults(store.ModeratorSettings{
		MaxMessages:        cfg.Conversation.MaxMessages,
		ErrorRateThreshold: cfg.Conversation.ErrorRateThreshold,
		ContextWindow:      cfg.Conversation.ContextWindow,
	})

	mux := http.NewServeMux()

	rpcServer := rpc.NewServer(dispatcher, verifier, logger)
	rpcServer.RegisterRoutes(mux)

	pushHandler := push.NewHandler(b, verifier, logger)
	pushHandler.SetPingInterval(cfg.Streaming.PingInterval)
	pushHandler.RegisterRoutes(mux)

	hub := socket.NewHub(dispatcher, verifier, logger)
	hub.SetPingInterval(cfg.Streaming.PingInterval)
	hub.RegisterRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": version})
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	eng.StopAll(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

const starterConfig = `# symposium server configuration
server:
  http_addr: ":8270"

database:
  path: "symposium.db"

auth:
  # Empty disables token checks. Supports ${VAR} expansion.
  jwt_secret: "${SYMPOSIUM_JWT_SECRET}"

gateway:
  # External model-call service handling provider credentials.
  url: "http://127.0.0.1:8271/complete"

conversation:
  max_messages: 50
  error_rate_threshold: 0.5
  context_window: 20
  retry_max_attempts: 3
  turn_delay: "2s"
  call_timeout: "60s"
  retry_base_delay: "1s"

streaming:
  ping_interval: "30s"

logging:
  level: "info"
  format: "text"
`

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(starterConfig), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Wrote %s\n", configPath)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := loadConfig(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	url := fmt.Sprintf("http://%s/health", addr)
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
