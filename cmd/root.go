package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kilianp07/gridflex/app"
	"github.com/kilianp07/gridflex/config"
	"github.com/kilianp07/gridflex/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "gridflex",
	Short: "Cost-minimizing dispatch of flexible energy assets",
	PersistentPreRunE: func(*cobra.Command, []string) error {
		// a missing .env file is not an error
		_ = godotenv.Load()
		return nil
	},
	RunE: run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// run keeps the service alive to expose metrics until interrupted.
func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := app.New(cfg, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
