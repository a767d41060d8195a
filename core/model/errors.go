package model

import (
	"fmt"
	"strings"
)

// EmptyHorizonError reports a horizon without periods.
type EmptyHorizonError struct {
	AssetID string
	Reason  string
}

func (e *EmptyHorizonError) Error() string {
	if e.AssetID != "" {
		return fmt.Sprintf("empty horizon for asset %s: %s", e.AssetID, e.Reason)
	}
	return fmt.Sprintf("empty horizon: %s", e.Reason)
}

// InvalidEfficiencyError reports a storage efficiency outside (0,1].
type InvalidEfficiencyError struct {
	AssetID    string
	Efficiency float64
}

func (e *InvalidEfficiencyError) Error() string {
	return fmt.Sprintf("asset %s: efficiency %g outside (0,1]", e.AssetID, e.Efficiency)
}

// InvalidAssetError reports an asset whose bounds or parameters are
// inconsistent, e.g. a lower capacity bound above the upper bound.
type InvalidAssetError struct {
	AssetID string
	Field   string
	Reason  string
}

func (e *InvalidAssetError) Error() string {
	return fmt.Sprintf("asset %s: invalid %s: %s", e.AssetID, e.Field, e.Reason)
}

// InvalidTariffError reports a negative, missing or malformed rate at tariff
// construction time.
type InvalidTariffError struct {
	Reason string
}

func (e *InvalidTariffError) Error() string { return "invalid tariff: " + e.Reason }

// TariffGapError reports a period of the horizon without a configured rate.
type TariffGapError struct {
	Period Period
}

func (e *TariffGapError) Error() string {
	return fmt.Sprintf("no tariff rate for period %s", e.Period)
}

// InvalidRequestError reports a malformed request-level field.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request %s: %s", e.Field, e.Reason)
}

// ResultInconsistencyError indicates that a solver result does not match the
// model it was produced for. It points to a builder or interpreter defect.
type ResultInconsistencyError struct {
	Reason     string
	Objective  float64
	Recomputed float64
	Variable   string
}

func (e *ResultInconsistencyError) Error() string {
	var b strings.Builder
	b.WriteString("result inconsistency: ")
	b.WriteString(e.Reason)
	if e.Variable != "" {
		fmt.Fprintf(&b, " (variable %s)", e.Variable)
	}
	if e.Objective != 0 || e.Recomputed != 0 {
		fmt.Fprintf(&b, " (objective %.9g, recomputed %.9g)", e.Objective, e.Recomputed)
	}
	return b.String()
}

// FailureKind classifies an OptimizationFailure.
type FailureKind string

const (
	FailureValidation   FailureKind = "validation"
	FailureInfeasible   FailureKind = "infeasible"
	FailureUnbounded    FailureKind = "unbounded"
	FailureTimedOut     FailureKind = "timed_out"
	FailureSolverError  FailureKind = "solver_error"
	FailureInconsistent FailureKind = "inconsistent"
)

// OptimizationFailure is the typed failure returned for every unsuccessful
// request. Err holds the underlying cause and is reachable with errors.As.
type OptimizationFailure struct {
	RequestID string
	Kind      FailureKind
	Err       error
	// InfeasibleTags lists constraint groups that jointly cannot be satisfied,
	// when the solver adapter could isolate them.
	InfeasibleTags []ConstraintTag
	// Incumbent is the best complete schedule found before a time limit, if any.
	// It is feasible but not proven optimal.
	Incumbent *DispatchSchedule
}

func (f *OptimizationFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "optimization %s", f.Kind)
	if f.RequestID != "" {
		fmt.Fprintf(&b, " [%s]", f.RequestID)
	}
	if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	if len(f.InfeasibleTags) > 0 {
		tags := make([]string, len(f.InfeasibleTags))
		for i, t := range f.InfeasibleTags {
			tags[i] = t.String()
		}
		fmt.Fprintf(&b, " (conflicting: %s)", strings.Join(tags, ", "))
	}
	return b.String()
}

func (f *OptimizationFailure) Unwrap() error { return f.Err }
