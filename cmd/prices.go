package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kilianp07/gridflex/infra/prices"
)

var (
	priceSource string
	priceStep   time.Duration
)

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Manage the day-ahead price store",
}

var pricesImportCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import a time,price CSV file into the store",
	Args:  cobra.ExactArgs(1),
	RunE:  importPrices,
}

var pricesListCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored price sources",
	RunE:  listPrices,
}

func init() {
	pricesImportCmd.Flags().StringVarP(&priceSource, "source", "s", "", "price source name, defaults to the configured source")
	pricesImportCmd.Flags().DurationVar(&priceStep, "step", time.Hour, "duration covered by each price")
	pricesCmd.AddCommand(pricesImportCmd, pricesListCmd)
	rootCmd.AddCommand(pricesCmd)
}

func openPrices() (*prices.Store, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	if !cfg.Prices.Enabled() {
		return nil, "", fmt.Errorf("no price store configured (prices.path)")
	}
	st, err := prices.Open(cfg.Prices.Path)
	if err != nil {
		return nil, "", err
	}
	return st, cfg.Prices.Source, nil
}

func importPrices(cmd *cobra.Command, args []string) error {
	st, source, err := openPrices()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	if priceSource != "" {
		source = priceSource
	}
	if source == "" {
		return fmt.Errorf("no price source given")
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	pts, err := prices.ReadCSV(f)
	if err != nil {
		return err
	}
	if err := st.Put(cmd.Context(), prices.Series{Source: source, Step: priceStep, Points: pts}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d prices into %s\n", len(pts), source)
	return nil
}

func listPrices(cmd *cobra.Command, args []string) error {
	st, _, err := openPrices()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	sources, err := st.Sources(cmd.Context())
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.Header("Source", "Prices", "First", "Last")
	for _, s := range sources {
		if err := table.Append(s.Name, fmt.Sprint(s.Count), s.First.Format(time.RFC3339), s.Last.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return table.Render()
}
