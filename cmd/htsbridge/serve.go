package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nadzzz/htsbridge/internal/config"
	"github.com/nadzzz/htsbridge/internal/dispatch"
	"github.com/nadzzz/htsbridge/internal/engine"
	"github.com/nadzzz/htsbridge/internal/health"
	"github.com/nadzzz/htsbridge/internal/synth"
	"github.com/nadzzz/htsbridge/internal/transport"
	grpctransport "github.com/nadzzz/htsbridge/internal/transport/grpc"
	httptransport "github.com/nadzzz/htsbridge/internal/transport/http"
	"github.com/nadzzz/htsbridge/internal/voice"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the synthesis daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return serve(ctx, cfg)
	},
}

// newSynthesizer builds the synthesizer and voice loader shared by serve and
// local synth.
func newSynthesizer(cfg *config.Config) (*synth.Synthesizer, *voice.Loader, error) {
	factory, err := engine.Backends.Factory(cfg.Engine.Backend, cfg.Engine.Options())
	if err != nil {
		return nil, nil, err
	}
	loader := voice.NewLoader(cfg.Voices.Dir, cfg.Voices.Default)
	if _, err := loader.Load(); err != nil {
		return nil, nil, fmt.Errorf("loading voices: %w", err)
	}
	return synth.New(factory), loader, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("htsbridge starting", "version", version, "engine", cfg.Engine.Backend)

	synthesizer, loader, err := newSynthesizer(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := synthesizer.Close(); err != nil {
			slog.Error("closing engines", "error", err)
		}
	}()
	slog.Info("voices loaded", "dir", cfg.Voices.Dir, "voices", loader.Catalog().Names(), "default", loader.Catalog().Default())

	if cfg.Voices.Watch {
		go func() {
			if err := loader.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("voice watcher stopped", "error", err)
			}
		}()
	}
	// Engine bindings keep their models across config edits; only the log
	// level and the voice catalog follow the file.
	cfg.Watch(func(next *config.Config) {
		config.SetLogLevel(next.Logging.Level)
		if _, err := loader.Load(); err != nil {
			slog.Warn("reloading voices", "error", err)
		}
	})

	var transports []transport.Transport
	if cfg.Transports.GRPC.Enabled {
		transports = append(transports, grpctransport.New(cfg.Transports.GRPC.Port))
	}
	if cfg.Transports.HTTP.Enabled {
		transports = append(transports, httptransport.New(cfg.Transports.HTTP.Port))
	}
	if len(transports) == 0 {
		return errors.New("no transports enabled: enable grpc or http in config")
	}

	dispatcher := dispatch.New(synthesizer, loader, dispatch.Options{AllowFilePaths: cfg.Server.AllowFilePaths})

	healthServer := health.New(cfg.Server.HealthPort, func() map[string]any {
		return map[string]any{
			"engines": synthesizer.Status(),
			"voices":  loader.Catalog().Names(),
		}
	})
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()

	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx, dispatcher.Handle); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}(t)
	}

	healthServer.SetReady(true)
	slog.Info("htsbridge ready",
		"transports", len(transports),
		"health_port", cfg.Server.HealthPort)

	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")
	healthServer.SetReady(false)

	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("htsbridge stopped")
	return nil
}
