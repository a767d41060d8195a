package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/gridflex/app"
	"github.com/kilianp07/gridflex/core/model"
	"github.com/kilianp07/gridflex/infra/logger"
	"github.com/kilianp07/gridflex/pkg/export"
	"github.com/kilianp07/gridflex/pkg/requestfile"
)

var (
	requestPath  string
	outputFormat string
	publish      bool
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Compute the cost-minimizing schedule of a request file",
	RunE:  optimize,
}

func init() {
	optimizeCmd.Flags().StringVarP(&requestPath, "request", "r", "", "request file (yaml or json)")
	optimizeCmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "output format: table, json or csv")
	optimizeCmd.Flags().BoolVar(&publish, "publish", false, "publish the schedule over MQTT")
	_ = optimizeCmd.MarkFlagRequired("request")
	rootCmd.AddCommand(optimizeCmd)
}

func writer(format string) (func(io.Writer, *model.DispatchSchedule) error, error) {
	switch format {
	case "table":
		return export.WriteTable, nil
	case "json":
		return export.WriteJSON, nil
	case "csv":
		return export.WriteCSV, nil
	default:
		return nil, fmt.Errorf("unknown format %s", format)
	}
}

func optimize(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	write, err := writer(outputFormat)
	if err != nil {
		return err
	}
	req, err := requestfile.Load(requestPath)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := app.New(cfg, app.Options{Publish: publish})
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()

	s, err := svc.Optimize(ctx, req)
	if err != nil {
		var f *model.OptimizationFailure
		if errors.As(err, &f) && f.Incumbent != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "best schedule found before the limit, not proven optimal:")
			_ = write(cmd.ErrOrStderr(), f.Incumbent)
		}
		return err
	}
	return write(cmd.OutOrStdout(), s)
}
