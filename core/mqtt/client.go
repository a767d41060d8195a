// Package mqtt defines how dispatch schedules leave the optimizer as
// setpoint messages.
package mqtt

import (
	"context"
	"time"

	"github.com/kilianp07/gridflex/core/model"
)

// Publisher sends the setpoints of a schedule to the assets.
type Publisher interface {
	PublishSchedule(ctx context.Context, s *model.DispatchSchedule) error
}

// Setpoint is the target of one asset for one period.
type Setpoint struct {
	Start   time.Time `json:"start"`
	PowerKW float64   `json:"power_kw"`
	SoCKWh  *float64  `json:"soc_kwh,omitempty"`
	On      *bool     `json:"on,omitempty"`
}

// AssetMessage is the payload published for one asset.
type AssetMessage struct {
	RequestID   string          `json:"request_id"`
	AssetID     string          `json:"asset_id"`
	Kind        model.AssetKind `json:"kind,omitempty"`
	StepSeconds int64           `json:"step_seconds"`
	Setpoints   []Setpoint      `json:"setpoints"`
}

// Messages splits s into one message per asset plus one for the site whose
// setpoints are the net grid exchange.
func Messages(s *model.DispatchSchedule) []AssetMessage {
	step := int64(s.Step / time.Second)
	out := make([]AssetMessage, 0, len(s.Assets)+1)
	for _, a := range s.Assets {
		m := AssetMessage{RequestID: s.RequestID, AssetID: a.AssetID, Kind: a.Kind, StepSeconds: step}
		for t, p := range a.PowerKW {
			sp := Setpoint{Start: s.PeriodStart(t), PowerKW: p}
			if t+1 < len(a.SoCKWh) {
				soc := a.SoCKWh[t+1]
				sp.SoCKWh = &soc
			}
			if t < len(a.On) {
				on := a.On[t]
				sp.On = &on
			}
			m.Setpoints = append(m.Setpoints, sp)
		}
		out = append(out, m)
	}
	site := AssetMessage{RequestID: s.RequestID, AssetID: model.SiteID, StepSeconds: step}
	for t := 0; t < s.Periods; t++ {
		site.Setpoints = append(site.Setpoints, Setpoint{Start: s.PeriodStart(t), PowerKW: s.ImportKW[t] - s.ExportKW[t]})
	}
	return append(out, site)
}
