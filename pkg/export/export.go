// Package export renders dispatch schedules for operators and downstream
// tools.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/kilianp07/gridflex/core/model"
)

// WriteJSON writes the schedule to w in JSON format.
func WriteJSON(w io.Writer, s *model.DispatchSchedule) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// columns returns the per-period header: site exchange followed by one power
// column per asset and one state of charge column per storage asset.
func columns(s *model.DispatchSchedule) []string {
	cols := []string{"period_start", "window", "import_kw", "export_kw", "net_kw"}
	for _, a := range s.Assets {
		cols = append(cols, a.AssetID+"_kw")
		if len(a.SoCKWh) > 0 {
			cols = append(cols, a.AssetID+"_soc_kwh")
		}
	}
	return cols
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// row returns the values of period t. The state of charge is the one reached
// at the end of the period.
func row(s *model.DispatchSchedule, t int, format func(float64) string) []string {
	r := []string{
		s.PeriodStart(t).Format(time.RFC3339),
		s.Windows[t].String(),
		format(s.ImportKW[t]),
		format(s.ExportKW[t]),
		format(s.NetKW[t]),
	}
	for _, a := range s.Assets {
		r = append(r, format(a.PowerKW[t]))
		if len(a.SoCKWh) > 0 {
			r = append(r, format(a.SoCKWh[t+1]))
		}
	}
	return r
}

// WriteCSV writes one row per period to w.
func WriteCSV(w io.Writer, s *model.DispatchSchedule) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns(s)); err != nil {
		return err
	}
	for t := 0; t < s.Periods; t++ {
		if err := cw.Write(row(s, t, formatFloat)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable renders the schedule as a text table followed by its cost
// breakdown and indicators.
func WriteTable(w io.Writer, s *model.DispatchSchedule) error {
	table := tablewriter.NewWriter(w)
	header := columns(s)
	hv := make([]any, len(header))
	for i, h := range header {
		hv[i] = h
	}
	table.Header(hv...)
	short := func(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
	for t := 0; t < s.Periods; t++ {
		r := row(s, t, short)
		rv := make([]any, len(r))
		for i, c := range r {
			rv[i] = c
		}
		if err := table.Append(rv...); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	c := s.Cost
	_, err := fmt.Fprintf(w,
		"request %s: total %.4f (energy %.4f, grid fee %.4f, demand %.4f, operating %.4f, fuel %.4f, carbon %.4f)\n"+
			"peak %.3f kW, flexible %.3f kWh, low window share %.1f%%, emissions %.3f kg, solved in %s (%d nodes)\n",
		s.RequestID, c.Total, c.Energy, c.GridFee, c.DemandCharge, c.Operating, c.Fuel, c.Carbon,
		s.PeakKW, s.Summary.FlexibleEnergyKWh, 100*s.Summary.LowWindowShare, s.Summary.EmissionsKg,
		s.SolveTime.Round(time.Millisecond), s.Nodes)
	if err != nil {
		return err
	}
	if hs := s.Summary.Heat; hs != nil {
		_, err = fmt.Fprintf(w, "heat %.3f kWh (electric %.3f, gas %.3f): saves %.4f and %.3f kg CO2 against gas only\n",
			hs.DemandKWh, hs.ElectricKWh, hs.GasKWh, hs.CostSavings, hs.EmissionsSavingsKg)
	}
	return err
}
