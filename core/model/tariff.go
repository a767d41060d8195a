package model

import "time"

// TariffType tags a tariff as static or dynamic.
type TariffType string

const (
	TariffStatic  TariffType = "static"
	TariffDynamic TariffType = "dynamic"
)

// WindowType classifies a period under a time-variable network fee.
type WindowType int

const (
	WindowStandard WindowType = iota
	WindowLow
	WindowHigh
)

// String returns a human-readable representation of the window type.
func (w WindowType) String() string {
	switch w {
	case WindowStandard:
		return "standard"
	case WindowLow:
		return "low"
	case WindowHigh:
		return "high"
	default:
		return "unknown"
	}
}

// RateSpec is a cost rate per kWh split in energy price and grid fee.
type RateSpec struct {
	Energy  float64 `json:"energy" yaml:"energy"`
	GridFee float64 `json:"grid_fee" yaml:"grid_fee"`
}

// RateEntrySpec is one row of a dynamic tariff table.
type RateEntrySpec struct {
	Start           time.Time `json:"start" yaml:"start"`
	DurationMinutes int       `json:"duration_minutes" yaml:"duration_minutes"`
	Energy          float64   `json:"energy" yaml:"energy"`
	GridFee         float64   `json:"grid_fee" yaml:"grid_fee"`
}

// NetworkFeeSpec configures how the grid fee is derived from a base fee.
// Mode "static" applies Reduction everywhere. Mode "dynamic" applies
// Reduction in up to two daily low-price windows and Surcharge in up to two
// high-price windows, both taken from the reference day's prices.
type NetworkFeeSpec struct {
	Mode        string  `json:"mode" yaml:"mode"`
	BaseFee     float64 `json:"base_fee" yaml:"base_fee"`
	Reduction   float64 `json:"reduction" yaml:"reduction"`
	Surcharge   float64 `json:"surcharge" yaml:"surcharge"`
	WindowHours int     `json:"window_hours" yaml:"window_hours"`
}

// TariffSpec describes the tariff of a request.
type TariffSpec struct {
	Type    TariffType      `json:"type" yaml:"type"`
	Static  RateSpec        `json:"static" yaml:"static"`
	Entries []RateEntrySpec `json:"entries,omitempty" yaml:"entries,omitempty"`
	// NetworkFee, when set, replaces the configured grid fees.
	NetworkFee *NetworkFeeSpec `json:"network_fee,omitempty" yaml:"network_fee,omitempty"`
}
