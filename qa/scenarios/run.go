package scenarios

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/gridflex/core/metrics"
	"github.com/kilianp07/gridflex/core/model"
	"github.com/kilianp07/gridflex/core/optimizer"
	"github.com/kilianp07/gridflex/infra/logger"
	"github.com/kilianp07/gridflex/infra/lpsolver"
	"github.com/kilianp07/gridflex/infra/metrics"
	"github.com/kilianp07/gridflex/internal/solverpool"
)

const costTolerance = 1e-6

// RunScenario optimizes the scenario request through a pooled solver and
// checks the expectations and the recorded metrics.
func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	pool := solverpool.New(lpsolver.New(logger.NopLogger{}), 1)
	defer pool.Close()
	opt := optimizer.New(pool, optimizer.Config{TimeLimit: 10 * time.Second, Diagnose: true}, logger.NopLogger{}, sink)

	s, err := opt.Optimize(context.Background(), sc.Request)
	want := sc.Expected
	if want.Status == coremetrics.StatusOptimal {
		require.NoError(t, err)
		checkSchedule(t, s, want)
	} else {
		var f *model.OptimizationFailure
		require.True(t, errors.As(err, &f), "expected failure %s, got %v", want.Status, err)
		assert.Equal(t, want.Status, string(f.Kind))
		got := make([]string, len(f.InfeasibleTags))
		for i, tag := range f.InfeasibleTags {
			got[i] = tag.String()
		}
		for _, c := range want.Conflicts {
			assert.Contains(t, got, c)
		}
	}

	n, err := testutil.GatherAndCount(reg, "gridflex_optimizations_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "one run must be recorded")
}

func checkSchedule(t *testing.T, s *model.DispatchSchedule, want Expected) {
	t.Helper()
	if want.Cost != nil {
		assert.InDelta(t, *want.Cost, s.Cost.Total, costTolerance)
	}
	if want.MaxPeakKW != nil {
		assert.LessOrEqual(t, s.PeakKW, *want.MaxPeakKW+costTolerance)
	}
	for id, on := range want.On {
		d, ok := s.Asset(id)
		require.True(t, ok, "asset %s missing", id)
		assert.Equal(t, on, d.On, "commitment of %s", id)
	}
	for t2 := 0; t2 < s.Periods; t2++ {
		assert.InDelta(t, s.NetKW[t2], s.ImportKW[t2]-s.ExportKW[t2], costTolerance, "balance at %d", t2)
	}
}
