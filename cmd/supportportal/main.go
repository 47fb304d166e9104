package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/victorgomez09/supportportal/internal/config"
	"github.com/victorgomez09/supportportal/internal/logger"
)

type rootOptions struct {
	configPath string
	logConfigs []string
}

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd builds the supportportal command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "supportportal",
		Short:         "User management portal with JWT authentication",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to main config file")
	rootCmd.PersistentFlags().StringSliceVar(&opts.logConfigs, "log-config", nil, "additional log config files (comma-separated)")

	rootCmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newUsersCommand(opts),
		newGenSecretCommand(),
	)
	return rootCmd
}

// initializeLogging loads log.config.json followed by any custom files.
func initializeLogging(custom []string) (*logger.Manager, *zap.Logger, error) {
	paths := []string{"log.config.json"}
	for _, p := range custom {
		if tp := strings.TrimSpace(p); tp != "" {
			paths = append(paths, tp)
		}
	}

	logs, err := logger.NewManager(paths...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logs, logs.Get(logger.RootLogger), nil
}

func loadConfig(path string, log *zap.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	log.Info("Configuration loaded",
		zap.String("path", path),
		zap.String("listen_on", cfg.Addr()),
		zap.Bool("tls", cfg.TLSEnabled()),
		zap.Bool("mail_enabled", cfg.Mail.Enabled))
	return cfg, nil
}
