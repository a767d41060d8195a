package tariff

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kilianp07/gridflex/core/model"
)

// Rate is the cost of one kWh drawn from the grid during a period.
type Rate struct {
	Energy  float64
	GridFee float64
	Window  model.WindowType
}

// Total returns the energy price plus the grid fee.
func (r Rate) Total() float64 { return r.Energy + r.GridFee }

func (r Rate) validate() error {
	if math.IsNaN(r.Energy) || math.IsInf(r.Energy, 0) || r.Energy < 0 {
		return &model.InvalidTariffError{Reason: fmt.Sprintf("energy price %g must be a non-negative number", r.Energy)}
	}
	if math.IsNaN(r.GridFee) || math.IsInf(r.GridFee, 0) || r.GridFee < 0 {
		return &model.InvalidTariffError{Reason: fmt.Sprintf("grid fee %g must be a non-negative number", r.GridFee)}
	}
	return nil
}

// Entry is one row of a dynamic tariff: a rate valid on [Start, Start+Duration).
type Entry struct {
	Start    time.Time
	Duration time.Duration
	Rate     Rate
}

// End returns the exclusive end of the entry.
func (e Entry) End() time.Time { return e.Start.Add(e.Duration) }

// Tariff is either a static rate for the whole horizon or an ordered table of
// rates. Callers only use Resolve and never branch on the variant.
type Tariff struct {
	kind   model.TariffType
	static Rate
	table  []Entry
}

// NewStatic returns a tariff that resolves to r for every period.
func NewStatic(r Rate) (Tariff, error) {
	if err := r.validate(); err != nil {
		return Tariff{}, err
	}
	return Tariff{kind: model.TariffStatic, static: r}, nil
}

// NewDynamic returns a tariff backed by the given entries. The slice is
// copied and sorted; overlapping entries are rejected.
func NewDynamic(entries []Entry) (Tariff, error) {
	if len(entries) == 0 {
		return Tariff{}, &model.InvalidTariffError{Reason: "dynamic tariff without entries"}
	}
	table := make([]Entry, len(entries))
	copy(table, entries)
	for i := range table {
		table[i].Start = table[i].Start.UTC()
	}
	sort.SliceStable(table, func(i, j int) bool { return table[i].Start.Before(table[j].Start) })
	for i, e := range table {
		if e.Duration <= 0 {
			return Tariff{}, &model.InvalidTariffError{Reason: fmt.Sprintf("entry at %s has non-positive duration", e.Start.Format(time.RFC3339))}
		}
		if err := e.Rate.validate(); err != nil {
			return Tariff{}, fmt.Errorf("entry at %s: %w", e.Start.Format(time.RFC3339), err)
		}
		if i > 0 && table[i-1].End().After(e.Start) {
			return Tariff{}, &model.InvalidTariffError{Reason: fmt.Sprintf("entries at %s and %s overlap",
				table[i-1].Start.Format(time.RFC3339), e.Start.Format(time.RFC3339))}
		}
	}
	return Tariff{kind: model.TariffDynamic, table: table}, nil
}

// Kind returns the tariff variant.
func (t Tariff) Kind() model.TariffType { return t.kind }

// Entries returns a copy of the dynamic table. It is empty for static tariffs.
func (t Tariff) Entries() []Entry {
	out := make([]Entry, len(t.table))
	copy(out, t.table)
	return out
}

// Resolve returns the rate applying to p. A dynamic tariff fails with
// TariffGapError when no single entry covers the whole period.
func (t Tariff) Resolve(p model.Period) (Rate, error) {
	if t.kind == model.TariffStatic {
		return t.static, nil
	}
	start := p.Start.UTC()
	// first entry starting after the period start
	i := sort.Search(len(t.table), func(i int) bool { return t.table[i].Start.After(start) })
	if i == 0 {
		return Rate{}, &model.TariffGapError{Period: p}
	}
	e := t.table[i-1]
	if e.End().Before(p.End) {
		return Rate{}, &model.TariffGapError{Period: p}
	}
	return e.Rate, nil
}

// Coverage resolves every period of h, failing on the first gap.
func (t Tariff) Coverage(h model.TimeHorizon) ([]Rate, error) {
	rates := make([]Rate, h.Len())
	for i := range rates {
		r, err := t.Resolve(h.Period(i))
		if err != nil {
			return nil, err
		}
		rates[i] = r
	}
	return rates, nil
}

// FromSpec builds a tariff from its request descriptor, applying the network
// fee model when one is configured.
func FromSpec(spec model.TariffSpec) (Tariff, error) {
	var fee *NetworkFee
	if spec.NetworkFee != nil {
		f, err := NetworkFeeFromSpec(*spec.NetworkFee)
		if err != nil {
			return Tariff{}, err
		}
		fee = &f
	}
	switch spec.Type {
	case model.TariffStatic, "":
		r := Rate{Energy: spec.Static.Energy, GridFee: spec.Static.GridFee}
		if fee != nil {
			if fee.Mode != FeeStatic {
				return Tariff{}, &model.InvalidTariffError{Reason: "a time-variable network fee requires a dynamic tariff"}
			}
			r.GridFee = fee.StaticFee()
		}
		return NewStatic(r)
	case model.TariffDynamic:
		entries := make([]Entry, len(spec.Entries))
		for i, e := range spec.Entries {
			entries[i] = Entry{
				Start:    e.Start,
				Duration: time.Duration(e.DurationMinutes) * time.Minute,
				Rate:     Rate{Energy: e.Energy, GridFee: e.GridFee},
			}
		}
		if fee != nil {
			// validate ordering before deriving windows from neighbouring entries
			if _, err := NewDynamic(entries); err != nil {
				return Tariff{}, err
			}
			entries = fee.Apply(entries)
		}
		return NewDynamic(entries)
	default:
		return Tariff{}, &model.InvalidTariffError{Reason: fmt.Sprintf("unknown tariff type %q", spec.Type)}
	}
}
