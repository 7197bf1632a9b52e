package training

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/OscarLlorente/AgeGenderDetector/checkpoints"
	"github.com/OscarLlorente/AgeGenderDetector/metrics"
	"github.com/OscarLlorente/AgeGenderDetector/nn"
	"github.com/OscarLlorente/AgeGenderDetector/vision/dataloader"
)

// EvalConfig holds the evaluation run parameters.
type EvalConfig struct {
	DataPath   string
	SavePath   string
	NRuns      int
	BatchSize  int
	NumWorkers int
	Save       bool
	UseCache   bool
	Seed       int64
	Logger     *zap.SugaredLogger
}

// DefaultEvalConfig returns the default evaluation configuration.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		DataPath:   "./data",
		SavePath:   "./models/saved",
		NRuns:      1,
		BatchSize:  64,
		NumWorkers: 2,
		Seed:       4444,
	}
}

// CheckpointResult is the evaluation outcome for one stored checkpoint: its
// updated record plus the per-run confusion matrices for each split.
type CheckpointResult struct {
	Folder   string
	Record   checkpoints.Record
	TrainCMs []*metrics.ConfusionMatrix
	ValCMs   []*metrics.ConfusionMatrix
	TestCMs  []*metrics.ConfusionMatrix
}

// Test evaluates every checkpoint under the save path on the train,
// validation and test splits, NRuns times each, and aggregates the per-run
// metrics into each record's results map. With Save set, the aggregated
// record is written back as a sidecar results file next to its checkpoint.
//
// The data split uses the same seed as training, so the evaluation sees the
// same partition the model was trained on.
func Test(config EvalConfig) ([]CheckpointResult, error) {
	if config.NRuns <= 0 {
		config.NRuns = 1
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	folders, err := checkpoints.List(config.SavePath)
	if err != nil {
		return nil, err
	}
	if len(folders) == 0 {
		return nil, fmt.Errorf("no checkpoints found under %s", config.SavePath)
	}

	results := make([]CheckpointResult, 0, len(folders))
	for _, folder := range folders {
		ckpt, err := checkpoints.Load(folder)
		if err != nil {
			return nil, fmt.Errorf("failed to load checkpoint %s: %w", folder, err)
		}
		model, err := ckpt.RestoreModel()
		if err != nil {
			return nil, fmt.Errorf("failed to restore model from %s: %w", folder, err)
		}
		model.Eval()

		train, val, test, err := dataloader.LoadSplits(config.DataPath, dataloader.SplitConfig{
			BatchSize:  config.BatchSize,
			ImageSize:  trainImageSize(ckpt.Record.Train.Suffix),
			NumWorkers: config.NumWorkers,
			Seed:       config.Seed,
			UseCache:   config.UseCache,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load data for %s: %w", folder, err)
		}

		logger.Infow("evaluating checkpoint",
			"folder", folder,
			"runs", config.NRuns,
			"train_samples", train.Len(),
			"val_samples", val.Len(),
			"test_samples", test.Len(),
		)

		result := CheckpointResult{Folder: folder, Record: ckpt.Record}
		splits := []struct {
			name   string
			loader *dataloader.Loader
			cms    *[]*metrics.ConfusionMatrix
		}{
			{"train", train, &result.TrainCMs},
			{"val", val, &result.ValCMs},
			{"test", test, &result.TestCMs},
		}

		agg := make(map[string][]float64)
		for run := 0; run < config.NRuns; run++ {
			for _, split := range splits {
				cm, mae, mse, err := evaluateSplit(model, split.loader, split.name)
				if err != nil {
					return nil, fmt.Errorf("checkpoint %s split %s: %w", folder, split.name, err)
				}
				*split.cms = append(*split.cms, cm)
				agg[split.name+"_mae"] = append(agg[split.name+"_mae"], mae)
				agg[split.name+"_mse"] = append(agg[split.name+"_mse"], mse)
				agg[split.name+"_acc"] = append(agg[split.name+"_acc"], cm.GlobalAccuracy())
				agg[split.name+"_mcc"] = append(agg[split.name+"_mcc"], cm.MatthewsCorrCoef())
			}
		}

		if result.Record.Metrics.Results == nil {
			result.Record.Metrics.Results = make(map[string]float64, len(agg))
		}
		for key, values := range agg {
			result.Record.Metrics.Results[key] = metrics.Mean(values)
		}

		logger.Infow("checkpoint evaluated",
			"folder", folder,
			"test_acc", result.Record.Metrics.Results["test_acc"],
			"test_mcc", result.Record.Metrics.Results["test_mcc"],
			"test_mae", result.Record.Metrics.Results["test_mae"],
		)

		if config.Save {
			if err := checkpoints.SaveResults(folder, result.Record); err != nil {
				return nil, fmt.Errorf("failed to save results for %s: %w", folder, err)
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// evaluateSplit runs one full pass over a loader and returns the gender
// confusion matrix plus the age MAE and MSE.
func evaluateSplit(model *nn.CNNClassifier, loader *dataloader.Loader, name string) (*metrics.ConfusionMatrix, float64, float64, error) {
	loader.Reset()
	cm := metrics.NewConfusionMatrix(2, name)

	var allAges, allPreds []float32
	for {
		batch, err := loader.NextBatch()
		if err != nil {
			return nil, 0, 0, err
		}
		if batch == nil {
			break
		}

		pred, err := model.Forward(batch.Images.Detach())
		if err != nil {
			return nil, 0, 0, err
		}
		logits, agePreds, err := splitOutput(pred.Detach())
		if err != nil {
			return nil, 0, 0, err
		}

		genders, err := batch.Genders.GetFloat32Data()
		if err != nil {
			return nil, 0, 0, err
		}
		if err := cm.Add(thresholdLogits(logits), genders); err != nil {
			return nil, 0, 0, err
		}

		ages, err := batch.Ages.GetFloat32Data()
		if err != nil {
			return nil, 0, 0, err
		}
		allAges = append(allAges, ages...)
		allPreds = append(allPreds, agePreds...)
	}

	mae, err := metrics.MeanAbsoluteError(allPreds, allAges)
	if err != nil {
		return nil, 0, 0, err
	}
	mse, err := metrics.MeanSquaredError(allPreds, allAges)
	if err != nil {
		return nil, 0, 0, err
	}
	return cm, mae, mse, nil
}
