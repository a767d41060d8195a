package scenarios

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/gridflex/core/model"
)

// Expected lists the checks applied to a scenario result. Nil fields are
// not checked.
type Expected struct {
	// Status is "optimal" or a failure kind such as "infeasible".
	Status    string   `yaml:"status"`
	Cost      *float64 `yaml:"cost,omitempty"`
	MaxPeakKW *float64 `yaml:"max_peak_kw,omitempty"`
	// Conflicts must all appear among the reported infeasible tags, written
	// as asset/origin.
	Conflicts []string `yaml:"conflicts,omitempty"`
	// On maps an on/off asset to its expected commitment per period.
	On map[string][]bool `yaml:"on,omitempty"`
}

// Scenario is a request with the outcome it must produce.
type Scenario struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Request     model.Request `yaml:"request"`
	Expected    Expected      `yaml:"expected"`
}

// Load reads one scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Expected.Status == "" {
		return nil, fmt.Errorf("%s: expected status missing", path)
	}
	return &sc, nil
}
