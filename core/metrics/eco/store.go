package eco

import (
	"time"

	"github.com/kilianp07/gridflex/core/model"
)

// Store persists daily energy records.
type Store interface {
	Add(Record) error
	Query(assetID string, start, end time.Time) ([]Record, error)
}

// Day aligns t to the start of its UTC day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FromSchedule splits a schedule into per-asset daily records plus one site
// record per day.
func FromSchedule(s *model.DispatchSchedule) []Record {
	h := s.Step.Hours()
	type key struct {
		id  string
		day time.Time
	}
	var order []key
	acc := map[key]*Record{}
	add := func(id string, t int, power float64) {
		k := key{id: id, day: Day(s.PeriodStart(t))}
		r := acc[k]
		if r == nil {
			r = &Record{AssetID: id, Date: k.day}
			acc[k] = r
			order = append(order, k)
		}
		if power >= 0 {
			r.ConsumedKWh += power * h
			if t < len(s.Windows) && s.Windows[t] == model.WindowLow {
				r.LowWindowKWh += power * h
			}
		} else {
			r.ProducedKWh -= power * h
		}
	}
	for _, a := range s.Assets {
		for t, p := range a.PowerKW {
			add(a.AssetID, t, p)
		}
	}
	for t := 0; t < s.Periods; t++ {
		add(model.SiteID, t, s.ImportKW[t])
		add(model.SiteID, t, -s.ExportKW[t])
	}
	out := make([]Record, len(order))
	for i, k := range order {
		out[i] = *acc[k]
	}
	return out
}
