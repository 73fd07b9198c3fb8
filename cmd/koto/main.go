// Koto is a personal secretary agent for LINE.
//
// It receives messages through a LINE webhook, answers with a
// tool-calling model loop, remembers conversations in a tiered memory
// (session window, semantic long-term store, synthesized user profile),
// and sends proactive reminders on a per-user schedule. Configuration
// is loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	koto serve       Start the webhook server
//	koto version     Print version and build information
package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/crypto/acme/autocert"

	"github.com/izaki/koto-agent/internal/agent"
	"github.com/izaki/koto-agent/internal/buildinfo"
	"github.com/izaki/koto-agent/internal/config"
	"github.com/izaki/koto-agent/internal/dav"
	"github.com/izaki/koto-agent/internal/embeddings"
	"github.com/izaki/koto-agent/internal/line"
	"github.com/izaki/koto-agent/internal/llm"
	"github.com/izaki/koto-agent/internal/mail"
	"github.com/izaki/koto-agent/internal/memory"
	"github.com/izaki/koto-agent/internal/mqtt"
	"github.com/izaki/koto-agent/internal/notify"
	"github.com/izaki/koto-agent/internal/profile"
	"github.com/izaki/koto-agent/internal/session"
	"github.com/izaki/koto-agent/internal/tools"
	"github.com/izaki/koto-agent/internal/userconfig"
	"github.com/izaki/koto-agent/internal/web"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main constructs the OS-level environment and delegates to [run] so
// the full startup-to-shutdown lifecycle stays testable.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer, args []string) error {
	// Arguments are parsed by hand; the flag package's global state
	// gets in the way of calling run concurrently from tests.
	var configPath string
	var command string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Koto - LINE Secretary Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: koto [flags] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve      Start the webhook server")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>   Path to config file (default: auto-discover)")
	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// runServe is the primary operating mode. Shutdown sequence:
//
//  1. SIGINT or SIGTERM cancels the context
//  2. A final session snapshot is persisted
//  3. The HTTP server drains in-flight requests
//  4. The database and MQTT connection close via defers
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Koto", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}
	logger.Info("config loaded", "path", cfgPath, "port", cfg.Listen.Port, "model", cfg.Gemini.Model)

	if cfg.Line.ChannelSecret == "" || cfg.Line.ChannelToken == "" {
		return errors.New("line.channel_secret and line.channel_token are required")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Persistence ---
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}
	dbPath := cfg.DataDir + "/koto.db"
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("open database %s: %w", dbPath, err)
	}
	defer db.Close()
	logger.Info("database opened", "path", dbPath)

	// --- Model and memory ---
	embedder := embeddings.New(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		APIKey:  cfg.Gemini.APIKey,
		Model:   cfg.Embeddings.Model,
	})

	mem, err := memory.NewStore(db, embedder, logger)
	if err != nil {
		return fmt.Errorf("init memory store: %w", err)
	}

	sessions := session.NewStore(cfg.Memory.MaxHistory)
	snapshots, err := session.NewSnapshotStore(db, logger)
	if err != nil {
		return fmt.Errorf("init session snapshots: %w", err)
	}
	snapshots.Hydrate(sessions)

	directory, err := notify.NewDirectory(db)
	if err != nil {
		return fmt.Errorf("init user directory: %w", err)
	}

	userConfDir := cfg.UserConfDir
	if userConfDir == "" {
		userConfDir = cfg.DataDir + "/users"
	}
	userConfigs, err := userconfig.NewStore(userConfDir)
	if err != nil {
		return fmt.Errorf("init user config store: %w", err)
	}

	model := llm.NewGeminiClient(logger, llm.GeminiConfig{
		BaseURL:     cfg.Gemini.BaseURL,
		APIKey:      cfg.Gemini.APIKey,
		Model:       cfg.Gemini.Model,
		Temperature: cfg.Gemini.Temperature,
		MaxTokens:   cfg.Gemini.MaxTokens,
		Timeout:     time.Duration(cfg.Gemini.TimeoutSec) * time.Second,
	})

	// --- Tools ---
	registry := tools.NewRegistry(logger)
	tools.RegisterCalculate(registry)
	tools.RegisterCalculateDate(registry, time.Now)
	tools.RegisterFetchURL(registry)
	tools.RegisterLocation(registry, directory)
	tools.RegisterWeather(registry, directory)
	if cfg.Search.Endpoint != "" {
		tools.RegisterWebSearch(registry, cfg.Search.Endpoint)
	}
	if cfg.Mail.Host != "" {
		mailClient := mail.NewClient(mail.Config{
			Host:     cfg.Mail.Host,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			Mailbox:  cfg.Mail.Mailbox,
		}, logger)
		defer mailClient.Close()
		tools.RegisterListMail(registry, mailClient)
	}
	if cfg.DAV.CalendarURL != "" || cfg.DAV.AddressBookURL != "" {
		davClient := dav.NewClient(dav.Config{
			CalendarURL:    cfg.DAV.CalendarURL,
			AddressBookURL: cfg.DAV.AddressBookURL,
			Username:       cfg.DAV.Username,
			Password:       cfg.DAV.Password,
		}, logger)
		if cfg.DAV.CalendarURL != "" {
			tools.RegisterListEvents(registry, davClient, time.Now)
		}
		if cfg.DAV.AddressBookURL != "" {
			tools.RegisterFindContact(registry, davClient)
		}
	}
	logger.Info("tools registered", "count", len(registry.Declarations()))

	// --- Agent loop ---
	koto := agent.New(model, registry, sessions, mem, logger, agent.Config{
		Personas:      userConfigs,
		SearchTopK:    cfg.Memory.SearchTopK,
		ContextTokens: cfg.Memory.ContextTokens,
	})

	// --- LINE boundary ---
	lineClient := line.NewClient(cfg.Line.ChannelToken, logger)
	webhook := line.NewWebhook(cfg.Line.ChannelSecret, lineClient, koto, directory, sessions, logger)

	mux := http.NewServeMux()
	mux.Handle("/webhook", webhook)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	if cfg.Line.AddFriendURL != "" {
		mux.HandleFunc("/qr", handleQR(cfg.Line.AddFriendURL, logger))
	}
	if cfg.Console.Enabled {
		web.NewConsole(koto, logger).Register(mux)
		logger.Info("developer console enabled", "path", "/console")
	}

	// --- Proactive notifications ---
	if cfg.Notify.Enabled {
		deliverers := []notify.Deliverer{&line.PushDeliverer{Client: lineClient}}

		if cfg.MQTT.Enabled {
			announcer := mqtt.NewAnnouncer(cfg.MQTT, logger)
			if err := announcer.Start(ctx); err != nil {
				logger.Error("mqtt announcer failed to start", "error", err)
			} else {
				deliverers = append(deliverers, announcer)
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					announcer.Stop(stopCtx)
				}()
			}
		}

		synthesizer := profile.NewSynthesizer(mem, model, logger, 24*time.Hour)
		scheduler := notify.NewScheduler(directory, userConfigs, koto, deliverers, synthesizer, logger, notify.Config{
			Timezone:     cfg.Notify.Timezone,
			ProfileHour:  cfg.Notify.ProfileHour,
			TickInterval: time.Duration(cfg.Notify.TickIntervalMin) * time.Minute,
		})
		go scheduler.Run(ctx)
		logger.Info("notification scheduler started", "profile_hour", cfg.Notify.ProfileHour)
	}

	// --- Session snapshots ---
	go func() {
		interval := time.Duration(cfg.Memory.SnapshotSec) * time.Second
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snapshots.SaveAll(sessions)
			}
		}
	}()

	// --- HTTP server ---
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	if len(cfg.Listen.AutocertDomains) > 0 {
		manager := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.Listen.AutocertDomains...),
			Cache:      autocert.DirCache(certCacheDir(cfg)),
		}
		server.Addr = net.JoinHostPort(cfg.Listen.Address, "443")
		server.TLSConfig = &tls.Config{
			MinVersion:     tls.VersionTLS12,
			GetCertificate: manager.GetCertificate,
		}
		// Port 80 answers ACME HTTP-01 challenges.
		go http.ListenAndServe(":80", manager.HTTPHandler(nil))
		go func() { errCh <- server.ListenAndServeTLS("", "") }()
		logger.Info("webhook server listening", "addr", server.Addr, "tls", "autocert", "domains", cfg.Listen.AutocertDomains)
	} else {
		server.Addr = net.JoinHostPort(cfg.Listen.Address, strconv.Itoa(cfg.Listen.Port))
		go func() { errCh <- server.ListenAndServe() }()
		logger.Info("webhook server listening", "addr", server.Addr)
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	snapshots.SaveAll(sessions)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}

	logger.Info("goodbye")
	return nil
}

// handleQR renders the add-friend URL as a PNG QR code for onboarding.
func handleQR(addFriendURL string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		png, err := qrcode.Encode(addFriendURL, qrcode.Medium, 256)
		if err != nil {
			logger.Error("qr encode failed", "error", err)
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	}
}

func certCacheDir(cfg *config.Config) string {
	if cfg.Listen.AutocertCacheDir != "" {
		return cfg.Listen.AutocertCacheDir
	}
	return cfg.DataDir + "/autocert"
}
