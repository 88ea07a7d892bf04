// Package main is the entry point for the agents-catalog server.
//
// agents-catalog exposes a managed collection of agent prompt documents
// stored in a GitHub repository. Reads walk the repository tree directly;
// every mutation lands on a fresh branch behind a pull request so a human
// reviews it before it reaches the default branch. Configuration is read
// from CLI flags and an optional .env file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/avila-roffe/agents-catalog/internal/catalog"
	"github.com/avila-roffe/agents-catalog/internal/github"
	"github.com/avila-roffe/agents-catalog/internal/server"
	"github.com/avila-roffe/agents-catalog/internal/server/ratelimit"
	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "agents-catalog: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	httpAddr := flag.String("http", "localhost:8080", "Address to listen on (e.g., localhost:8080, :8080, 0.0.0.0:8080). Use 0.0.0.0:port to listen on all interfaces.")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	envFile := flag.String("env-file", ".env", "Path to a .env file with credentials (optional)")
	owner := flag.String("github-owner", "", "GitHub repository owner")
	repo := flag.String("github-repo", "", "GitHub repository name")
	token := flag.String("github-token", "", "GitHub personal access token")
	appID := flag.Int64("github-app-id", 0, "GitHub App ID (alternative to a token)")
	appKeyPath := flag.String("github-app-key", "", "Path to the GitHub App private key PEM")
	installationID := flag.Int64("github-installation-id", 0, "GitHub App installation ID")
	rateRequests := flag.Int("rate-limit", 120, "Requests per minute allowed per client IP (0 disables)")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	ll.Set(slog.LevelInfo)
	// Skip timestamps when running under systemd (it adds its own).
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000", // Like time.TimeOnly plus milliseconds.
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			// Drop localhost IPs (not useful in logs).
			if a.Key == "ip" {
				if v := a.Value.String(); v == "127.0.0.1" || v == "::1" {
					return slog.Attr{}
				}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	// .env values fill in whatever the flags left unset.
	env, err := loadDotEnv(*envFile)
	if err != nil {
		return err
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if !set["http"] {
		if v := env["HTTP"]; v != "" {
			*httpAddr = v
		}
	}
	if !set["log-level"] {
		if v := env["LOG_LEVEL"]; v != "" {
			*logLevel = v
		}
	}
	if !set["github-owner"] {
		if v := env["GITHUB_OWNER"]; v != "" {
			*owner = v
		}
	}
	if !set["github-repo"] {
		if v := env["GITHUB_REPO"]; v != "" {
			*repo = v
		}
	}
	if !set["github-token"] {
		if v := env["GITHUB_TOKEN"]; v != "" {
			*token = v
		}
	}
	if !set["github-app-id"] {
		if v := env["GITHUB_APP_ID"]; v != "" {
			if *appID, err = strconv.ParseInt(v, 10, 64); err != nil {
				return fmt.Errorf("invalid GITHUB_APP_ID: %w", err)
			}
		}
	}
	if !set["github-app-key"] {
		if v := env["GITHUB_APP_KEY"]; v != "" {
			*appKeyPath = v
		}
	}
	if !set["github-installation-id"] {
		if v := env["GITHUB_INSTALLATION_ID"]; v != "" {
			if *installationID, err = strconv.ParseInt(v, 10, 64); err != nil {
				return fmt.Errorf("invalid GITHUB_INSTALLATION_ID: %w", err)
			}
		}
	}

	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}

	if *owner == "" || *repo == "" {
		return errors.New("github-owner and github-repo are required")
	}

	cfg := github.Config{
		Owner:          *owner,
		Repo:           *repo,
		Token:          *token,
		AppID:          *appID,
		InstallationID: *installationID,
	}
	if *appKeyPath != "" {
		key, err := os.ReadFile(*appKeyPath)
		if err != nil {
			return fmt.Errorf("failed to read GitHub App key: %w", err)
		}
		cfg.AppPrivateKey = key
	}
	client, err := github.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize GitHub client: %w", err)
	}

	var limiter *ratelimit.Limiter
	if *rateRequests > 0 {
		limiter = ratelimit.NewLimiter(*rateRequests, time.Minute, *rateRequests)
		defer limiter.Close()
	}

	// Watch own executable for modifications (for development restarts).
	if err := watchExecutable(ctx, stop); err != nil {
		return fmt.Errorf("failed to watch executable: %w", err)
	}

	// Normalize addr: ":8080" becomes "localhost:8080".
	addr := *httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	buildVersion, _, _, _ := getBuildInfo()
	router := server.NewRouter(
		catalog.NewQueryService(client),
		catalog.NewMutationService(client),
		buildVersion,
		limiter,
	)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "owner", *owner, "repo", *repo, "version", buildVersion)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("agents-catalog %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}

func loadDotEnv(path string) (map[string]string, error) {
	env := make(map[string]string)
	envContent, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the env-file flag, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return env, nil
		}
		return nil, err
	}

	for line := range strings.SplitSeq(string(envContent), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if strings.HasPrefix(val, "'") || strings.HasSuffix(val, "'") {
			if strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'") {
				return nil, fmt.Errorf("single quotes are not supported for wrapping in .env: %s", line)
			}
			return nil, fmt.Errorf("unbalanced single quotes in .env: %s", line)
		}
		if strings.HasPrefix(val, "\"") {
			unquoted, err := strconv.Unquote(val)
			if err != nil {
				return nil, fmt.Errorf("failed to unquote %s: %w", key, err)
			}
			val = unquoted
		}
		env[key] = val
	}
	return env, nil
}

// watchExecutable watches the current executable for modifications and calls
// stop to trigger graceful shutdown when detected. This enables seamless
// restarts during development.
func watchExecutable(ctx context.Context, stop context.CancelFunc) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(exe); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) {
					slog.InfoContext(ctx, "Executable modified, initiating shutdown")
					stop()
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching executable", "err", err)
			}
		}
	}()
	return nil
}
