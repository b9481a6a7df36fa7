// Htsbridge serves HTS (hts_engine) speech synthesis to network clients.
// Requests name a voice and a phone sequence; the daemon dispatches them to
// the engine API version the voice needs, keeps loaded models cached per
// version, and returns audio with per-segment end times.
//
// Usage:
//
//	htsbridge serve --config /path/to/htsbridge.yaml
//	htsbridge synth --voice kal -o out.wav sil k ae t sil
//	htsbridge host --listen :10300
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nadzzz/htsbridge/internal/config"

	// Engine backends register themselves with engine.Backends.
	_ "github.com/nadzzz/htsbridge/internal/engine/mock"
	_ "github.com/nadzzz/htsbridge/internal/engine/remote"
)

// version is set at build time via ldflags.
var version = "dev"

var configFile string

var rootCmd = &cobra.Command{
	Use:           "htsbridge",
	Short:         "HTS speech synthesis bridge",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (e.g. configs/htsbridge.yaml)")
	rootCmd.AddCommand(serveCmd, synthCmd, hostCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and exit",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "htsbridge %s\n", version)
	},
}

// loadConfig loads the configuration and installs the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := config.SetupLogging(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	err := rootCmd.Execute()
	_ = config.CloseLogging()
	if err != nil {
		fmt.Fprintln(os.Stderr, "htsbridge:", err)
		os.Exit(1)
	}
}
