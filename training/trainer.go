package training

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/OscarLlorente/AgeGenderDetector/checkpoints"
	"github.com/OscarLlorente/AgeGenderDetector/metrics"
	"github.com/OscarLlorente/AgeGenderDetector/nn"
	"github.com/OscarLlorente/AgeGenderDetector/tensor"
	"github.com/OscarLlorente/AgeGenderDetector/vision/dataloader"
)

// TrainConfig holds the run hyperparameters for Train. Zero values fall back
// to the defaults via DefaultTrainConfig.
type TrainConfig struct {
	LogDir            string
	DataPath          string
	SavePath          string
	LR                float64
	OptimizerName     string
	NEpochs           int
	BatchSize         int
	NumWorkers        int
	SchedulerMode     string
	StepsSave         int
	LossAgeWeight     float64
	SchedulerPatience int
	Suffix            string
	UseCache          bool
	Seed              int64
	Logger            *zap.SugaredLogger
}

// DefaultTrainConfig returns the default training configuration.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		LogDir:            "./logs",
		DataPath:          "./data",
		SavePath:          "./models/saved",
		LR:                1e-2,
		OptimizerName:     "adamw",
		NEpochs:           65,
		BatchSize:         64,
		NumWorkers:        2,
		SchedulerMode:     "min_mse",
		StepsSave:         1,
		LossAgeWeight:     1e-2,
		SchedulerPatience: 10,
		Seed:              4444,
	}
}

// Train runs the full training loop: per epoch a forward/backward pass over
// the train split with the combined gender+age loss, a validation pass, a
// plateau scheduler step on the mode-selected metric, scalar logging, and the
// checkpoint policy (canonical best overwritten in place, periodic copies
// suffixed with the epoch number).
//
// Unknown optimizer names or scheduler modes fail here, before any data is
// read or any file written.
func Train(model *nn.CNNClassifier, record *checkpoints.Record, config TrainConfig) error {
	optimizerName, err := ParseOptimizerName(config.OptimizerName)
	if err != nil {
		return err
	}
	mode, err := ParseSchedulerMode(config.SchedulerMode)
	if err != nil {
		return err
	}
	if config.NEpochs <= 0 {
		return fmt.Errorf("number of epochs must be positive, got %d", config.NEpochs)
	}
	if config.StepsSave <= 0 {
		return fmt.Errorf("steps_save must be positive, got %d", config.StepsSave)
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	// Merge the run hyperparameters into the record; they are part of the
	// variant's identity from here on.
	record.Train = checkpoints.TrainParams{
		LR:            config.LR,
		OptimizerName: config.OptimizerName,
		BatchSize:     config.BatchSize,
		SchedulerMode: config.SchedulerMode,
		LossAgeWeight: config.LossAgeWeight,
		Suffix:        config.Suffix,
	}

	trainLoader, valLoader, _, err := dataloader.LoadSplits(config.DataPath, dataloader.SplitConfig{
		BatchSize:  config.BatchSize,
		ImageSize:  trainImageSize(config.Suffix),
		NumWorkers: config.NumWorkers,
		Seed:       config.Seed,
		UseCache:   config.UseCache,
	})
	if err != nil {
		return fmt.Errorf("failed to load data: %w", err)
	}

	optimizer, err := NewOptimizer(optimizerName, model.Parameters(), config.LR)
	if err != nil {
		return err
	}
	scheduler := NewReduceLROnPlateau(optimizer, mode, config.SchedulerPatience, 0, -1)
	collector := NewScalarCollector(config.LogDir, record.LogName())

	lossGender := nn.NewBCEWithLogitsLoss()
	lossAge := nn.NewMSELoss()

	// Explicit best-so-far accumulator, seeded from the record when a prior
	// run left a value there. Absent a prior value the first comparison is
	// never "better".
	best := initialBest(*record, mode)

	logger.Infow("training started",
		"run", record.RunName(),
		"optimizer", optimizerName.String(),
		"scheduler_mode", mode.String(),
		"epochs", config.NEpochs,
		"train_samples", trainLoader.Len(),
		"val_samples", valLoader.Len(),
	)

	for epoch := 0; epoch < config.NEpochs; epoch++ {
		model.Train()
		trainLoader.Reset()

		trainCM := metrics.NewConfusionMatrix(2, "train")
		var trainLosses, trainGenderLosses, trainAgeLosses []float64

		for {
			batch, err := trainLoader.NextBatch()
			if err != nil {
				return fmt.Errorf("epoch %d: %w", epoch, err)
			}
			if batch == nil {
				break
			}

			pred, err := model.Forward(batch.Images)
			if err != nil {
				return fmt.Errorf("epoch %d forward pass: %w", epoch, err)
			}
			genderLogits := tensor.SelectColumnAutograd(pred, 0)
			agePreds := tensor.SelectColumnAutograd(pred, 1)

			genderLoss, err := lossGender.Forward(genderLogits, batch.Genders)
			if err != nil {
				return fmt.Errorf("epoch %d gender loss: %w", epoch, err)
			}
			ageLoss, err := lossAge.Forward(agePreds, batch.Ages)
			if err != nil {
				return fmt.Errorf("epoch %d age loss: %w", epoch, err)
			}
			loss := tensor.AddAutograd(genderLoss, tensor.ScaleAutograd(ageLoss, config.LossAgeWeight))

			optimizer.ZeroGrad()
			if err := loss.Backward(); err != nil {
				return fmt.Errorf("epoch %d backward pass: %w", epoch, err)
			}
			if err := optimizer.Step(); err != nil {
				return fmt.Errorf("epoch %d optimizer step: %w", epoch, err)
			}

			trainLosses = append(trainLosses, scalarOf(loss))
			trainGenderLosses = append(trainGenderLosses, scalarOf(genderLoss))
			trainAgeLosses = append(trainAgeLosses, scalarOf(ageLoss))

			logits, err := genderLogits.GetFloat32Data()
			if err != nil {
				return fmt.Errorf("epoch %d logits: %w", epoch, err)
			}
			genders, err := batch.Genders.GetFloat32Data()
			if err != nil {
				return fmt.Errorf("epoch %d labels: %w", epoch, err)
			}
			if err := trainCM.Add(thresholdLogits(logits), genders); err != nil {
				return fmt.Errorf("epoch %d confusion matrix: %w", epoch, err)
			}
		}

		// Validation pass without parameter updates.
		model.Eval()
		valLoader.Reset()

		valCM := metrics.NewConfusionMatrix(2, "val")
		var valMSEs []float64

		for {
			batch, err := valLoader.NextBatch()
			if err != nil {
				return fmt.Errorf("epoch %d validation: %w", epoch, err)
			}
			if batch == nil {
				break
			}

			pred, err := model.Forward(batch.Images.Detach())
			if err != nil {
				return fmt.Errorf("epoch %d validation forward: %w", epoch, err)
			}
			logits, agePreds, err := splitOutput(pred.Detach())
			if err != nil {
				return fmt.Errorf("epoch %d validation output: %w", epoch, err)
			}

			genders, err := batch.Genders.GetFloat32Data()
			if err != nil {
				return fmt.Errorf("epoch %d validation labels: %w", epoch, err)
			}
			if err := valCM.Add(thresholdLogits(logits), genders); err != nil {
				return fmt.Errorf("epoch %d validation confusion matrix: %w", epoch, err)
			}

			ages, err := batch.Ages.GetFloat32Data()
			if err != nil {
				return fmt.Errorf("epoch %d validation ages: %w", epoch, err)
			}
			mse, err := metrics.MeanSquaredError(agePreds, ages)
			if err != nil {
				return fmt.Errorf("epoch %d validation mse: %w", epoch, err)
			}
			valMSEs = append(valMSEs, mse)
		}

		trainLoss := metrics.Mean(trainLosses)
		trainGenderLoss := metrics.Mean(trainGenderLosses)
		trainAgeLoss := metrics.Mean(trainAgeLosses)
		valMSEAge := metrics.Mean(valMSEs)

		met := selectMetric(mode, trainLoss, valMSEAge, trainCM, valCM)
		isBetter := best != nil && mode.Better(met, *best)
		if best == nil || isBetter {
			v := met
			best = &v
		}
		scheduler.Step(met)

		step := epoch + 1
		collector.Add("loss_train", step, trainLoss)
		collector.Add("loss_age_train", step, trainAgeLoss)
		collector.Add("loss_gender_train", step, trainGenderLoss)
		collectConfusionMatrix(collector, trainCM, step, "train")
		collector.Add("mse_age_val", step, valMSEAge)
		collectConfusionMatrix(collector, valCM, step, "val")
		collector.Add("lr", step, optimizer.LR())
		if err := collector.Save(); err != nil {
			return fmt.Errorf("epoch %d scalar log: %w", epoch, err)
		}

		logger.Infow("epoch complete",
			"epoch", step,
			"loss", trainLoss,
			"val_mse_age", valMSEAge,
			"train_acc", trainCM.GlobalAccuracy(),
			"val_acc", valCM.GlobalAccuracy(),
			"val_mcc", valCM.MatthewsCorrCoef(),
			"lr", optimizer.LR(),
			"is_better", isBetter,
		)

		if epoch%config.StepsSave == config.StepsSave-1 || isBetter {
			state := checkpoints.TrainingState{
				Epoch:        step,
				TotalEpochs:  config.NEpochs,
				LearningRate: optimizer.LR(),
			}

			if isBetter {
				// Improving best mutates and overwrites the canonical record.
				applyMetrics(&record.Metrics, step, trainLoss, valMSEAge, trainCM, valCM)
				if err := checkpoints.Save(config.SavePath, record.RunName(), model, *record, state); err != nil {
					return fmt.Errorf("epoch %d checkpoint: %w", epoch, err)
				}
			} else {
				// Periodic save writes a copy, leaving the canonical best
				// untouched.
				snapshot := *record
				applyMetrics(&snapshot.Metrics, step, trainLoss, valMSEAge, trainCM, valCM)
				if err := checkpoints.Save(config.SavePath, snapshot.PeriodicName(step), model, snapshot, state); err != nil {
					return fmt.Errorf("epoch %d checkpoint: %w", epoch, err)
				}
			}
		}
	}

	logger.Infow("training finished", "run", record.RunName())
	return nil
}

// trainImageSize reads the training image size out of the record suffix,
// falling back to 200px when the suffix is not numeric.
func trainImageSize(suffix string) int {
	if size, err := parseImageSize(suffix); err == nil {
		return size
	}
	return 200
}

// selectMetric maps the scheduler mode to the scalar metric that drives both
// learning-rate reduction and the "best checkpoint" decision.
func selectMetric(mode SchedulerMode, trainLoss, valMSEAge float64, trainCM, valCM *metrics.ConfusionMatrix) float64 {
	switch mode {
	case MinLoss:
		return trainLoss
	case MinMSE:
		return valMSEAge
	case MaxAcc:
		return trainCM.GlobalAccuracy()
	case MaxValAcc:
		return valCM.GlobalAccuracy()
	case MaxValMCC:
		return valCM.MatthewsCorrCoef()
	default:
		return trainLoss
	}
}

// initialBest reads the stored metric for the mode out of the record, nil
// when the record has never been checkpointed as best.
func initialBest(record checkpoints.Record, mode SchedulerMode) *float64 {
	var stored *float64
	switch mode {
	case MinLoss:
		stored = record.Metrics.TrainLoss
	case MinMSE:
		stored = record.Metrics.ValMSEAge
	case MaxAcc:
		stored = record.Metrics.TrainAcc
	case MaxValAcc:
		stored = record.Metrics.ValAcc
	case MaxValMCC:
		stored = record.Metrics.ValMCC
	}
	if stored == nil {
		return nil
	}
	v := *stored
	return &v
}

func applyMetrics(m *checkpoints.RunMetrics, epoch int, trainLoss, valMSEAge float64, trainCM, valCM *metrics.ConfusionMatrix) {
	trainAcc := trainCM.GlobalAccuracy()
	valAcc := valCM.GlobalAccuracy()
	valMCC := valCM.MatthewsCorrCoef()

	m.Epoch = epoch
	m.TrainLoss = &trainLoss
	m.ValMSEAge = &valMSEAge
	m.TrainAcc = &trainAcc
	m.ValAcc = &valAcc
	m.ValMCC = &valMCC
}

func collectConfusionMatrix(collector *ScalarCollector, cm *metrics.ConfusionMatrix, step int, suffix string) {
	collector.Add("acc_global_"+suffix, step, cm.GlobalAccuracy())
	collector.Add("acc_avg_"+suffix, step, cm.AverageAccuracy())
	collector.Add("mcc_"+suffix, step, cm.MatthewsCorrCoef())
	for i, acc := range cm.ClassAccuracy() {
		collector.Add(fmt.Sprintf("acc_class_%d_%s", i, suffix), step, acc)
	}
}

// thresholdLogits maps gender logits to hard labels: logit > 0 is class 1.
func thresholdLogits(logits []float32) []float32 {
	preds := make([]float32, len(logits))
	for i, l := range logits {
		if l > 0 {
			preds[i] = 1
		}
	}
	return preds
}

// splitOutput splits a detached [B, 2] output into its gender logit and age
// columns.
func splitOutput(pred *tensor.Tensor) (logits, ages []float32, err error) {
	if len(pred.Shape) != 2 || pred.Shape[1] < 2 {
		return nil, nil, fmt.Errorf("expected [batch, 2] output, got shape %v", pred.Shape)
	}
	data, err := pred.GetFloat32Data()
	if err != nil {
		return nil, nil, err
	}

	rows, cols := pred.Shape[0], pred.Shape[1]
	logits = make([]float32, rows)
	ages = make([]float32, rows)
	for i := 0; i < rows; i++ {
		logits[i] = data[i*cols]
		ages[i] = data[i*cols+1]
	}
	return logits, ages, nil
}

func scalarOf(t *tensor.Tensor) float64 {
	value, err := t.Detach().Item()
	if err != nil {
		return 0
	}
	if f, ok := value.(float32); ok {
		return float64(f)
	}
	return 0
}
