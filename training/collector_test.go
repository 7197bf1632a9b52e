package training

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarCollectorSeries(t *testing.T) {
	c := NewScalarCollector(t.TempDir(), "run")

	c.Add("loss_train", 1, 0.9)
	c.Add("loss_train", 2, 0.7)
	c.Add("lr", 1, 0.01)

	points := c.Series("loss_train")
	require.Len(t, points, 2)
	assert.Equal(t, ScalarPoint{Step: 1, Value: 0.9}, points[0])
	assert.Equal(t, ScalarPoint{Step: 2, Value: 0.7}, points[1])

	assert.Nil(t, c.Series("missing"))
	assert.Equal(t, []string{"loss_train", "lr"}, c.SeriesNames())
}

func TestScalarCollectorSeriesReturnsCopy(t *testing.T) {
	c := NewScalarCollector(t.TempDir(), "run")
	c.Add("lr", 1, 0.01)

	points := c.Series("lr")
	points[0].Value = 99

	assert.Equal(t, 0.01, c.Series("lr")[0].Value)
}

func TestScalarCollectorSave(t *testing.T) {
	dir := t.TempDir()
	// Run names may contain path separators; Save must create the nested dirs.
	c := NewScalarCollector(dir, filepath.Join("lr=0.01", "opt=adamw"))
	c.Add("loss_train", 1, 0.5)
	require.NoError(t, c.Save())

	raw, err := os.ReadFile(filepath.Join(dir, "lr=0.01", "opt=adamw", "scalars.json"))
	require.NoError(t, err)

	var log struct {
		Series map[string][]ScalarPoint `json:"series"`
	}
	require.NoError(t, json.Unmarshal(raw, &log))
	require.Len(t, log.Series["loss_train"], 1)
	assert.Equal(t, 0.5, log.Series["loss_train"][0].Value)
}

func TestScalarCollectorSaveOverwrites(t *testing.T) {
	dir := t.TempDir()
	c := NewScalarCollector(dir, "run")
	c.Add("loss_train", 1, 0.5)
	require.NoError(t, c.Save())
	c.Add("loss_train", 2, 0.4)
	require.NoError(t, c.Save())

	raw, err := os.ReadFile(filepath.Join(dir, "run", "scalars.json"))
	require.NoError(t, err)

	var log struct {
		Series map[string][]ScalarPoint `json:"series"`
	}
	require.NoError(t, json.Unmarshal(raw, &log))
	assert.Len(t, log.Series["loss_train"], 2)
}
