package cli

import (
	"fmt"

	"github.com/harun/notemate/internal/config"
	"github.com/harun/notemate/internal/daemon"
	"github.com/harun/notemate/internal/logger"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the notemate HTTP server",
	Long: `Start the notemate HTTP server in the foreground.
The server stops gracefully on SIGINT or SIGTERM, waiting for in-flight
requests. Changes to server.allowed_origins in the config file are applied
without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(loggerConfig(cfg.Logging))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	for _, warning := range config.NewValidator().ValidateConfig(cfg) {
		log.Warn().Err(warning).Msg("Configuration warning")
	}

	d, err := daemon.New(cfg, log, daemon.WithLoader(loader), daemon.WithVersion(version))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create daemon")
		return err
	}
	if err := d.Start(); err != nil {
		return err
	}

	return d.Wait()
}

func loggerConfig(cfg config.LoggingConfig) logger.Config {
	return logger.Config{
		Level:      cfg.Level,
		File:       cfg.File,
		Console:    true,
		Pretty:     cfg.Pretty,
		Redaction:  cfg.Redaction,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
		Service:    "notemate",
	}
}
