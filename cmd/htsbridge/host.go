package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nadzzz/htsbridge/internal/engine"
	"github.com/nadzzz/htsbridge/internal/engine/remote"
)

var hostFlags struct {
	listen  string
	backend string
}

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Serve an in-process engine backend to remote htsbridge daemons",
	Long: `Serve an engine backend over the framed engine protocol used by the
"remote" backend. Each connection gets its own engine instance.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := loadConfig(); err != nil {
			return err
		}
		factory, err := engine.Backends.Factory(hostFlags.backend, nil)
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		slog.Info("engine host starting", "listen", hostFlags.listen, "backend", hostFlags.backend)
		return remote.ListenAndServe(ctx, hostFlags.listen, factory)
	},
}

func init() {
	hostCmd.Flags().StringVar(&hostFlags.listen, "listen", ":10300", "address to listen on")
	hostCmd.Flags().StringVar(&hostFlags.backend, "backend", "mock", "engine backend to serve")
}
