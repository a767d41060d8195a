package tariff

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kilianp07/gridflex/core/model"
)

// Network fee modes.
const (
	FeeStatic  = "static"
	FeeDynamic = "dynamic"
)

// NetworkFee derives grid fees from a base fee. The static mode grants flexible
// loads a constant reduction. The dynamic mode marks, per UTC day, up to two
// low windows (fee reduced) around the cheapest and up to two high windows
// (fee raised) around the most expensive energy prices. Windows are
// WindowHours long, centred on a peak period starting between 06:00 and 21:59,
// and windows of one kind never overlap. A day is charged by the windows of its
// reference day so the fee is known a day ahead; low windows win where a low
// and a high window meet.
type NetworkFee struct {
	Mode        string
	BaseFee     float64
	Reduction   float64
	Surcharge   float64
	WindowHours int
}

// NetworkFeeFromSpec validates the descriptor and returns a NetworkFee.
func NetworkFeeFromSpec(s model.NetworkFeeSpec) (NetworkFee, error) {
	f := NetworkFee{Mode: s.Mode, BaseFee: s.BaseFee, Reduction: s.Reduction, Surcharge: s.Surcharge, WindowHours: s.WindowHours}
	if f.Mode == "" {
		f.Mode = FeeStatic
	}
	if f.Mode != FeeStatic && f.Mode != FeeDynamic {
		return NetworkFee{}, &model.InvalidTariffError{Reason: fmt.Sprintf("unknown network fee mode %q", s.Mode)}
	}
	if math.IsNaN(f.BaseFee) || f.BaseFee < 0 {
		return NetworkFee{}, &model.InvalidTariffError{Reason: "network fee must be non-negative"}
	}
	if math.IsNaN(f.Reduction) || f.Reduction < 0 || f.Reduction > 1 {
		return NetworkFee{}, &model.InvalidTariffError{Reason: "network fee reduction must be in [0,1]"}
	}
	if math.IsNaN(f.Surcharge) || f.Surcharge < 0 {
		return NetworkFee{}, &model.InvalidTariffError{Reason: "network fee surcharge must be non-negative"}
	}
	if f.Mode == FeeDynamic && f.WindowHours <= 0 {
		return NetworkFee{}, &model.InvalidTariffError{Reason: "dynamic network fee requires window_hours > 0"}
	}
	return f, nil
}

// StaticFee returns the fee applied in static mode.
func (f NetworkFee) StaticFee() float64 { return f.BaseFee * (1 - f.Reduction) }

// Apply returns a sorted copy of entries whose grid fee and window type follow
// the fee model. Energy prices are left untouched.
func (f NetworkFee) Apply(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	if f.Mode == FeeStatic {
		for i := range out {
			out[i].Rate.GridFee = f.StaticFee()
			out[i].Rate.Window = model.WindowStandard
		}
		return out
	}
	for i := range out {
		out[i].Rate.GridFee = f.BaseFee
		out[i].Rate.Window = model.WindowStandard
	}
	days := splitDays(out)
	windows := make(map[time.Time]dayWindows, len(days))
	for _, d := range days {
		windows[d.date] = f.pickWindows(d.date, out[d.from:d.to])
	}
	for _, d := range days {
		w, ok := windows[referenceDay(d.date)]
		if !ok {
			// no history for the reference day: fall back to the day itself
			w = windows[d.date]
		}
		f.charge(d.date, out[d.from:d.to], w)
	}
	return out
}

// Peak periods of the dynamic fee start within these hours of the day.
const (
	firstPeakHour = 6
	lastPeakHour  = 21
	peaksPerKind  = 2
)

type dayRange struct {
	date     time.Time
	from, to int
}

func splitDays(entries []Entry) []dayRange {
	var days []dayRange
	for i := 0; i < len(entries); {
		date := midnight(entries[i].Start)
		j := i + 1
		for j < len(entries) && midnight(entries[j].Start).Equal(date) {
			j++
		}
		days = append(days, dayRange{date: date, from: i, to: j})
		i = j
	}
	return days
}

func midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// referenceDay returns the day whose prices set the windows of date: the
// previous working day for working days, Friday for a Monday and the same
// weekday one week earlier on weekends.
func referenceDay(date time.Time) time.Time {
	switch date.Weekday() {
	case time.Monday:
		return date.AddDate(0, 0, -3)
	case time.Saturday, time.Sunday:
		return date.AddDate(0, 0, -7)
	default:
		return date.AddDate(0, 0, -1)
	}
}

// window is a time-of-day interval [from, to) measured from midnight.
type window struct{ from, to time.Duration }

func (w window) overlaps(o window) bool { return w.from < o.to && o.from < w.to }

func (w window) contains(d time.Duration) bool { return d >= w.from && d < w.to }

type dayWindows struct{ low, high []window }

func (f NetworkFee) pickWindows(date time.Time, day []Entry) dayWindows {
	var candidates []int
	for i, e := range day {
		if h := e.Start.UTC().Hour(); h >= firstPeakHour && h <= lastPeakHour {
			candidates = append(candidates, i)
		}
	}
	cheap := append([]int(nil), candidates...)
	sort.SliceStable(cheap, func(a, b int) bool { return day[cheap[a]].Rate.Energy < day[cheap[b]].Rate.Energy })
	dear := append([]int(nil), candidates...)
	sort.SliceStable(dear, func(a, b int) bool { return day[dear[a]].Rate.Energy > day[dear[b]].Rate.Energy })
	return dayWindows{
		low:  f.peaks(date, day, cheap),
		high: f.peaks(date, day, dear),
	}
}

// peaks walks the candidate periods in order of preference and keeps the
// windows that do not overlap one already kept.
func (f NetworkFee) peaks(date time.Time, day []Entry, order []int) []window {
	length := time.Duration(f.WindowHours) * time.Hour
	if length > 24*time.Hour {
		return nil
	}
	var out []window
	for _, i := range order {
		if len(out) == peaksPerKind {
			break
		}
		mid := day[i].Start.UTC().Sub(date) + day[i].Duration/2
		w := window{from: mid - length/2, to: mid - length/2 + length}
		free := true
		for _, o := range out {
			if w.overlaps(o) {
				free = false
				break
			}
		}
		if free {
			out = append(out, w)
		}
	}
	return out
}

func (f NetworkFee) charge(date time.Time, day []Entry, w dayWindows) {
	for i := range day {
		at := day[i].Start.UTC().Sub(date)
		switch {
		case within(w.low, at):
			day[i].Rate.GridFee = f.BaseFee * (1 - f.Reduction)
			day[i].Rate.Window = model.WindowLow
		case within(w.high, at):
			day[i].Rate.GridFee = f.BaseFee * (1 + f.Surcharge)
			day[i].Rate.Window = model.WindowHigh
		}
	}
}

func within(ws []window, at time.Duration) bool {
	for _, w := range ws {
		if w.contains(at) {
			return true
		}
	}
	return false
}

// PricePoint is a raw energy price sample.
type PricePoint struct {
	Time  time.Time
	Price float64
}

// FromPrices builds a dynamic tariff from a price series where each point is
// valid for step. Without a network fee the grid fee is zero.
func FromPrices(points []PricePoint, step time.Duration, fee *NetworkFee) (Tariff, error) {
	entries := make([]Entry, len(points))
	for i, p := range points {
		entries[i] = Entry{Start: p.Time, Duration: step, Rate: Rate{Energy: p.Price}}
	}
	if fee != nil {
		if _, err := NewDynamic(entries); err != nil {
			return Tariff{}, err
		}
		entries = fee.Apply(entries)
	}
	return NewDynamic(entries)
}
