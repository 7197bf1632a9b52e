package training

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OscarLlorente/AgeGenderDetector/checkpoints"
	"github.com/OscarLlorente/AgeGenderDetector/nn"
	"github.com/OscarLlorente/AgeGenderDetector/tensor"
)

// savedCheckpoint writes one checkpoint with random tiny-model weights.
func savedCheckpoint(t *testing.T, savePath string) checkpoints.Record {
	t.Helper()
	tensor.SetRandomSeed(11)
	model, err := nn.NewCNNClassifier(tinyModelConfig())
	require.NoError(t, err)

	record := checkpoints.Record{Model: tinyModelConfig()}
	record.Train = checkpoints.TrainParams{
		LR:            1e-2,
		OptimizerName: "adamw",
		BatchSize:     4,
		SchedulerMode: "min_mse",
		LossAgeWeight: 1e-2,
		Suffix:        "8",
	}

	state := checkpoints.TrainingState{Epoch: 1, TotalEpochs: 1, LearningRate: 1e-2}
	require.NoError(t, checkpoints.Save(savePath, record.RunName(), model, record, state))
	return record
}

func TestEvaluatorAggregatesRuns(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping evaluation loop in short mode")
	}

	savePath := t.TempDir()
	savedCheckpoint(t, savePath)
	dataPath := fakeFaceDir(t, 12)

	config := DefaultEvalConfig()
	config.DataPath = dataPath
	config.SavePath = savePath
	config.NRuns = 2
	config.BatchSize = 4
	config.NumWorkers = 1
	config.UseCache = true

	results, err := Test(config)
	require.NoError(t, err)
	require.Len(t, results, 1)

	result := results[0]
	assert.Len(t, result.TrainCMs, 2)
	assert.Len(t, result.ValCMs, 2)
	assert.Len(t, result.TestCMs, 2)

	for _, key := range []string{
		"train_mae", "train_mse", "train_acc", "train_mcc",
		"val_mae", "val_mse", "val_acc", "val_mcc",
		"test_mae", "test_mse", "test_acc", "test_mcc",
	} {
		_, ok := result.Record.Metrics.Results[key]
		assert.True(t, ok, "missing aggregated metric %s", key)
	}

	// Deterministic loaders: both runs see the same data, so the aggregated
	// accuracy equals each run's accuracy.
	assert.Equal(t, result.TrainCMs[0].GlobalAccuracy(), result.TrainCMs[1].GlobalAccuracy())
}

func TestEvaluatorSavesResultsSidecar(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping evaluation loop in short mode")
	}

	savePath := t.TempDir()
	record := savedCheckpoint(t, savePath)
	dataPath := fakeFaceDir(t, 12)

	config := DefaultEvalConfig()
	config.DataPath = dataPath
	config.SavePath = savePath
	config.BatchSize = 4
	config.NumWorkers = 1
	config.Save = true

	_, err := Test(config)
	require.NoError(t, err)

	folder := filepath.Join(savePath, record.RunName())
	sidecar := filepath.Join(folder, record.RunName()+".results.json")
	_, err = os.Stat(sidecar)
	assert.NoError(t, err, "expected a results sidecar next to the checkpoint")
}

func TestEvaluatorNoCheckpoints(t *testing.T) {
	config := DefaultEvalConfig()
	config.SavePath = t.TempDir()
	config.DataPath = t.TempDir()

	_, err := Test(config)
	assert.Error(t, err)
}
