package training

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OscarLlorente/AgeGenderDetector/checkpoints"
	"github.com/OscarLlorente/AgeGenderDetector/metrics"
	"github.com/OscarLlorente/AgeGenderDetector/nn"
	"github.com/OscarLlorente/AgeGenderDetector/tensor"
)

// tinyModelConfig keeps test models small enough for CPU epochs.
func tinyModelConfig() nn.ModelConfig {
	return nn.ModelConfig{
		InChannels:      3,
		OutChannels:     2,
		DimLayers:       []int{4},
		BlockConvLayers: 1,
		Residual:        false,
		MaxPooling:      true,
	}
}

func writeJPEG(t testing.TB, path string, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// fakeFaceDir writes n UTKFace-named images into a temp dir.
func fakeFaceDir(t testing.TB, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%d_%d_test_%03d.jpg", 20+i, i%2, i)
		writeJPEG(t, filepath.Join(dir, name), color.RGBA{R: uint8(i * 15), G: 120, B: 80, A: 255})
	}
	return dir
}

func tinyTrainConfig(t *testing.T, dataPath string) TrainConfig {
	t.Helper()
	config := DefaultTrainConfig()
	config.DataPath = dataPath
	config.LogDir = t.TempDir()
	config.SavePath = t.TempDir()
	config.NEpochs = 2
	config.BatchSize = 4
	config.NumWorkers = 1
	config.Suffix = "8"
	config.UseCache = true
	return config
}

func TestTrainRejectsUnknownOptimizer(t *testing.T) {
	tensor.SetRandomSeed(1)
	model, err := nn.NewCNNClassifier(tinyModelConfig())
	require.NoError(t, err)

	config := tinyTrainConfig(t, t.TempDir())
	config.OptimizerName = "rmsprop"

	record := checkpoints.Record{Model: tinyModelConfig()}
	err = Train(model, &record, config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rmsprop")

	// Failing before the first batch must leave no files behind.
	for _, dir := range []string{config.SavePath, config.LogDir} {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
}

func TestTrainRejectsUnknownSchedulerMode(t *testing.T) {
	tensor.SetRandomSeed(1)
	model, err := nn.NewCNNClassifier(tinyModelConfig())
	require.NoError(t, err)

	config := tinyTrainConfig(t, t.TempDir())
	config.SchedulerMode = "max_f1"

	record := checkpoints.Record{Model: tinyModelConfig()}
	err = Train(model, &record, config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_f1")

	for _, dir := range []string{config.SavePath, config.LogDir} {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	}
}

func TestTrainEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping training loop in short mode")
	}

	tensor.SetRandomSeed(4444)
	model, err := nn.NewCNNClassifier(tinyModelConfig())
	require.NoError(t, err)

	dataPath := fakeFaceDir(t, 12)
	config := tinyTrainConfig(t, dataPath)

	record := checkpoints.Record{Model: tinyModelConfig()}
	require.NoError(t, Train(model, &record, config))

	// The run hyperparameters were merged into the record.
	assert.Equal(t, config.LR, record.Train.LR)
	assert.Equal(t, "adamw", record.Train.OptimizerName)
	assert.Equal(t, "8", record.Train.Suffix)

	// With steps_save=1 the first epoch always writes a periodic copy; it is
	// suffixed with the 1-based epoch number because the first epoch can
	// never improve on a best that does not exist yet.
	periodic := filepath.Join(config.SavePath, record.PeriodicName(1))
	_, err = os.Stat(filepath.Join(periodic, checkpoints.CheckpointFile))
	assert.NoError(t, err, "expected a periodic checkpoint for epoch 1")

	folders, err := checkpoints.List(config.SavePath)
	require.NoError(t, err)
	assert.NotEmpty(t, folders)

	// The scalar log holds one point per epoch for the loss series.
	raw, err := os.ReadFile(filepath.Join(config.LogDir, record.LogName(), "scalars.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "loss_train")
	assert.Contains(t, string(raw), "mse_age_val")
}

func TestInitialBestEmptyRecord(t *testing.T) {
	record := checkpoints.Record{Model: tinyModelConfig()}
	for _, mode := range []SchedulerMode{MinLoss, MinMSE, MaxAcc, MaxValAcc, MaxValMCC} {
		assert.Nil(t, initialBest(record, mode), mode.String())
	}
}

func TestInitialBestReadsStoredMetric(t *testing.T) {
	mse := 12.5
	record := checkpoints.Record{Model: tinyModelConfig()}
	record.Metrics.ValMSEAge = &mse

	best := initialBest(record, MinMSE)
	require.NotNil(t, best)
	assert.Equal(t, 12.5, *best)

	// The accumulator must not alias the record's pointer.
	*best = 0
	assert.Equal(t, 12.5, *record.Metrics.ValMSEAge)

	assert.Nil(t, initialBest(record, MaxValAcc))
}

func TestSelectMetric(t *testing.T) {
	trainCM := metrics.NewConfusionMatrix(2, "train")
	valCM := metrics.NewConfusionMatrix(2, "val")
	require.NoError(t, trainCM.Add([]float32{1, 0}, []float32{1, 1}))
	require.NoError(t, valCM.Add([]float32{1, 1}, []float32{1, 1}))

	assert.Equal(t, 0.25, selectMetric(MinLoss, 0.25, 9.0, trainCM, valCM))
	assert.Equal(t, 9.0, selectMetric(MinMSE, 0.25, 9.0, trainCM, valCM))
	assert.Equal(t, 0.5, selectMetric(MaxAcc, 0.25, 9.0, trainCM, valCM))
	assert.Equal(t, 1.0, selectMetric(MaxValAcc, 0.25, 9.0, trainCM, valCM))
}

func TestThresholdLogits(t *testing.T) {
	preds := thresholdLogits([]float32{-2.5, 0, 0.1, 7})
	assert.Equal(t, []float32{0, 0, 1, 1}, preds)
}
