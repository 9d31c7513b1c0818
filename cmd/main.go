// Package main is the entry point for the hook gateway.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hookmux/hook-gateway/external"
	"github.com/hookmux/hook-gateway/internal/config"
	"github.com/hookmux/hook-gateway/internal/dispatch"
	"github.com/hookmux/hook-gateway/internal/gateway"
	"github.com/hookmux/hook-gateway/internal/hooks"
	"github.com/hookmux/hook-gateway/internal/monitoring"
	"github.com/hookmux/hook-gateway/internal/projects"
	"github.com/hookmux/hook-gateway/internal/sandbox"
	"github.com/hookmux/hook-gateway/internal/sink"
)

// loadEnvFiles loads .env from standard locations.
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	// Try loading from ~/.config/hook-gateway/.env first
	configEnv := filepath.Join(homeDir, ".config", "hook-gateway", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Also load local .env (can override)
	_ = godotenv.Load()
}

// setupLogging configures zerolog with pretty console output.
func setupLogging(debug bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// resolveConfigPath checks the user flag, then filesystem locations.
func resolveConfigPath(userConfig string) (string, error) {
	if userConfig != "" {
		if _, err := os.Stat(userConfig); err != nil {
			return "", err
		}
		return userConfig, nil
	}

	searchPaths := []string{}
	if homeDir, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(homeDir, ".config", "hook-gateway", "config.yaml"))
	}
	searchPaths = append(searchPaths, "configs/config.yaml")

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", os.ErrNotExist
}

func main() {
	loadEnvFiles()

	configPath := flag.String("config", "", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	setupLogging(*debug)

	path, err := resolveConfigPath(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("no config file found, specify --config path")
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Str("config", path).Msg("failed to load configuration")
	}

	// The config's monitoring section takes over unless --debug forces
	// pretty console output at debug level.
	if !*debug {
		monitoring.Global(cfg.Monitoring)
	}

	log.Info().
		Int("port", cfg.Server.Port).
		Str("config", path).
		Msg("hook gateway starting")

	// Project registry and hook store.
	registry, err := projects.Load(cfg.Projects.RegistryPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load project registry")
	}

	store := hooks.NewStore(cfg.Store.UserDocPath(), registry.HookDocPath)
	for _, name := range registry.Names() {
		if err := store.LoadProject(name); err != nil {
			log.Warn().Err(err).Str("project", name).Msg("failed to load project hooks")
		}
	}

	// Sandbox runtime with external capability clients. Unconfigured
	// URLs leave the collaborator nil; the capability degrades to a
	// logged warning inside the sandbox.
	capClient := &http.Client{Timeout: external.DefaultTimeout}
	sandboxCfg := sandbox.Config{
		Timeout:      cfg.Sandbox.Timeout,
		AllowedHosts: cfg.Sandbox.AllowedHosts,
		OllamaModel:  cfg.Capabilities.OllamaModel,
	}
	if url := cfg.Capabilities.SpeechURL; url != "" {
		sandboxCfg.Speech = external.NewSpeechClient(url, capClient)
	}
	if url := cfg.Capabilities.OllamaURL; url != "" {
		sandboxCfg.Ollama = external.NewOllamaClient(url, cfg.Capabilities.OllamaModel,
			&http.Client{Timeout: external.DefaultOllamaTimeout})
	}
	if url := cfg.Capabilities.NotifyURL; url != "" {
		sandboxCfg.Notifier = external.NewNotifyClient(url, capClient)
	}
	runtime := sandbox.New(sandboxCfg)

	// Execution history sink.
	var resultSink sink.Sink
	switch cfg.Sink.Type {
	case "sqlite":
		s, err := sink.NewSQLite(cfg.Sink.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Sink.Path).Msg("failed to open execution sink")
		}
		resultSink = s
	default:
		resultSink = sink.NopSink{}
	}
	defer func() {
		if err := resultSink.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close execution sink")
		}
	}()

	hub := gateway.NewHub()
	dispatcher := dispatch.New(store, runtime, registry, resultSink, hub, cfg.Dispatch.Delay())
	gw := gateway.New(cfg, store, dispatcher, resultSink, hub)

	// Handle graceful shutdown.
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := gw.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("gateway shutdown error")
		}
	}()

	if err := gw.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("gateway error")
	}

	log.Info().Msg("hook gateway stopped")
}
