package eco

import "time"

// Record aggregates the energy of one asset over one UTC day. The site
// record (asset id "site") holds grid import and export.
type Record struct {
	AssetID      string
	Date         time.Time
	ConsumedKWh  float64
	ProducedKWh  float64
	LowWindowKWh float64 // consumption placed in low-fee windows
}

// CO2Kg returns the emissions of the consumed energy for a grid intensity in g/kWh.
func (r Record) CO2Kg(factor float64) float64 {
	return r.ConsumedKWh * factor / 1000
}

// LowWindowShare returns the share of consumption placed in low-fee windows.
func (r Record) LowWindowShare() float64 {
	if r.ConsumedKWh == 0 {
		return 0
	}
	return r.LowWindowKWh / r.ConsumedKWh
}
