package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridflex/core/model"
)

const request = `id: cli
horizon:
  start: 2024-05-01T00:00:00Z
  step_minutes: 60
  count: 2
assets:
  - id: base
    kind: fixed_load
    profile_kw: [1, 2]
tariff:
  type: static
  static:
    energy: 0.25
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		outputFormat, publish, cfgPath, priceSource = "table", false, "", ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestOptimizeCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "req.yaml")
	require.NoError(t, os.WriteFile(path, []byte(request), 0o644))

	out, err := execute(t, "optimize", "-r", path, "--format", "json")
	require.NoError(t, err)
	var s model.DispatchSchedule
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	assert.Equal(t, "cli", s.RequestID)
	assert.InDelta(t, 0.75, s.Cost.Total, 1e-6)

	_, err = execute(t, "optimize", "-r", path, "--format", "xml")
	assert.Error(t, err)
}

func TestPricesCommands(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("prices:\n  path: "+filepath.Join(dir, "prices.db")+"\n"), 0o644))
	csv := filepath.Join(dir, "prices.csv")
	require.NoError(t, os.WriteFile(csv, []byte("time,price\n2024-05-01T00:00:00Z,0.1\n2024-05-01T01:00:00Z,0.2\n"), 0o644))

	out, err := execute(t, "prices", "import", csv, "-c", cfg, "-s", "epex")
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 prices into epex")

	out, err = execute(t, "prices", "ls", "-c", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "epex")
	assert.Contains(t, out, "2024-05-01T01:00:00Z")
}
