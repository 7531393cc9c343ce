package main

import (
	"simple-bot/internal/config"
	"simple-bot/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "simple-bot",
	Short:         "Chat with the content of a PDF",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
}

// loadConfig reads the config and builds the root logger
func loadConfig() (*config.AppConfig, *zap.SugaredLogger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Server.LogMode)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
