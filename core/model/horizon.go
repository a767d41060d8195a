package model

import (
	"fmt"
	"time"
)

// Period is one discrete step of a TimeHorizon.
type Period struct {
	Index int
	Start time.Time
	End   time.Time
}

// Duration returns the length of the period.
func (p Period) Duration() time.Duration { return p.End.Sub(p.Start) }

// Hours returns the length of the period in hours. Power in kW multiplied by
// Hours gives energy in kWh.
func (p Period) Hours() float64 { return p.Duration().Hours() }

// Contains reports whether t falls in [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

func (p Period) String() string {
	return fmt.Sprintf("#%d[%s,%s)", p.Index, p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
}

// TimeHorizon is an ordered sequence of contiguous periods of equal length.
type TimeHorizon struct {
	start time.Time
	step  time.Duration
	count int
}

// NewTimeHorizon returns a horizon of count periods of length step starting at
// start. A horizon without periods is rejected with EmptyHorizonError.
func NewTimeHorizon(start time.Time, step time.Duration, count int) (TimeHorizon, error) {
	if count <= 0 {
		return TimeHorizon{}, &EmptyHorizonError{Reason: fmt.Sprintf("period count %d", count)}
	}
	if step <= 0 {
		return TimeHorizon{}, &EmptyHorizonError{Reason: fmt.Sprintf("period length %s", step)}
	}
	return TimeHorizon{start: start.UTC(), step: step, count: count}, nil
}

// Len returns the number of periods.
func (h TimeHorizon) Len() int { return h.count }

// Step returns the period length.
func (h TimeHorizon) Step() time.Duration { return h.step }

// Start returns the start of the first period.
func (h TimeHorizon) Start() time.Time { return h.start }

// End returns the end of the last period.
func (h TimeHorizon) End() time.Time { return h.start.Add(time.Duration(h.count) * h.step) }

// Period returns the i-th period. It panics if i is out of range.
func (h TimeHorizon) Period(i int) Period {
	if i < 0 || i >= h.count {
		panic(fmt.Sprintf("period index %d out of range [0,%d)", i, h.count))
	}
	s := h.start.Add(time.Duration(i) * h.step)
	return Period{Index: i, Start: s, End: s.Add(h.step)}
}

// Periods returns all periods in time order.
func (h TimeHorizon) Periods() []Period {
	out := make([]Period, h.count)
	for i := range out {
		out[i] = h.Period(i)
	}
	return out
}

// Hours returns the length of one period in hours.
func (h TimeHorizon) Hours() float64 { return h.step.Hours() }

// IsZero reports whether the horizon was never initialized.
func (h TimeHorizon) IsZero() bool { return h.count == 0 }

// Spec returns the descriptor this horizon was built from.
func (h TimeHorizon) Spec() HorizonSpec {
	return HorizonSpec{Start: h.start, StepMinutes: int(h.step / time.Minute), Count: h.count}
}

// HorizonSpec describes a TimeHorizon in a request.
type HorizonSpec struct {
	Start       time.Time `json:"start" yaml:"start"`
	StepMinutes int       `json:"step_minutes" yaml:"step_minutes"`
	Count       int       `json:"count" yaml:"count"`
}

// Build converts the descriptor into a TimeHorizon.
func (s HorizonSpec) Build() (TimeHorizon, error) {
	return NewTimeHorizon(s.Start, time.Duration(s.StepMinutes)*time.Minute, s.Count)
}
