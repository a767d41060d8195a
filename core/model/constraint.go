package model

// Origin names the modelling rule a constraint comes from.
type Origin string

const (
	OriginCapacity          Origin = "capacity"
	OriginRamp              Origin = "ramp"
	OriginSoCContinuity     Origin = "soc_continuity"
	OriginSoCBounds         Origin = "soc_bounds"
	OriginEnergyRequirement Origin = "energy_requirement"
	OriginCommitment        Origin = "commitment"
	OriginMinRuntime        Origin = "min_runtime"
	OriginGridBalance       Origin = "grid_balance"
	OriginGridLimit         Origin = "grid_limit"
	OriginDemandPeak        Origin = "demand_peak"
	OriginHeatDemand        Origin = "heat_demand"
	OriginFullLoadHours     Origin = "full_load_hours"
)

// ConstraintTag identifies a group of constraints by asset and origin.
type ConstraintTag struct {
	AssetID string `json:"asset_id"`
	Origin  Origin `json:"origin"`
}

func (t ConstraintTag) String() string { return t.AssetID + "/" + string(t.Origin) }
