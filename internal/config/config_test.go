package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
	assert.Equal(t, 30, c.Model.K)
	assert.Equal(t, "TARGET", c.Data.TargetColumn)
	assert.Len(t, c.Prompt.Fields, 8)
	assert.Equal(t, "gender", c.Prompt.Fields[0].Alias)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data:
  path: s3://loans/app.csv.zst
  id_columns: []
model:
  k: 16
  divisor: neighbors
server:
  job_timeout: 90s
prompt:
  fields:
    - column: FLAG_OWN_CAR
      alias: own_car
`), 0o644))
	t.Setenv("LOANMINING_MODEL_MAX_CHECK", "12")
	t.Setenv("LOANMINING_LOG_LEVEL", "debug")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3://loans/app.csv.zst", c.Data.Path)
	assert.Empty(t, c.Data.IDColumns)
	assert.Equal(t, 16, c.Model.K)
	assert.Equal(t, "neighbors", c.Model.Divisor)
	assert.Equal(t, 12, c.Model.MaxCheck)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, 90*time.Second, c.Server.JobTimeout)
	assert.Equal(t, []Field{{Column: "FLAG_OWN_CAR", Alias: "own_car"}}, c.Prompt.Fields)
	// Untouched keys keep their defaults.
	assert.Equal(t, 29, c.Data.PopulationNum)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  k: 0\n"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "model.k")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	c := Default()
	c.Data.PopulationNum = 31
	assert.Error(t, c.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "loanmining.yaml")
	want := Default()
	want.Model.K = 7
	want.Diagnostics.Compress = true
	require.NoError(t, Save(want, path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
