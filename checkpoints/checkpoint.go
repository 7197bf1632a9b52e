package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/OscarLlorente/AgeGenderDetector/nn"
	"github.com/OscarLlorente/AgeGenderDetector/tensor"
)

// CheckpointFile is the canonical file name inside every checkpoint folder.
const CheckpointFile = "checkpoint.json"

// TrainParams are the run hyperparameters persisted alongside the model
// configuration. Suffix records the training image size as a string so
// inference can rebuild the resize transform.
type TrainParams struct {
	LR            float64 `json:"train_lr"`
	OptimizerName string  `json:"train_optimizer_name"`
	BatchSize     int     `json:"train_batch_size"`
	SchedulerMode string  `json:"train_scheduler_mode"`
	LossAgeWeight float64 `json:"train_loss_age_weight"`
	Suffix        string  `json:"train_suffix"`
}

// RunMetrics carries the per-checkpoint training state. Pointer fields are nil
// until the first checkpoint is written, so a "best so far" comparison against
// a fresh record is never true.
type RunMetrics struct {
	Epoch     int      `json:"epoch"`
	TrainLoss *float64 `json:"train_loss,omitempty"`
	ValMSEAge *float64 `json:"val_mse_age,omitempty"`
	TrainAcc  *float64 `json:"train_acc,omitempty"`
	ValAcc    *float64 `json:"val_acc,omitempty"`
	ValMCC    *float64 `json:"val_mcc,omitempty"`

	// Results holds evaluation metrics merged in by the evaluation loop.
	Results map[string]float64 `json:"results,omitempty"`
}

// Record identifies a trained model variant: its architecture configuration,
// the training hyperparameters, and the metrics of the persisted checkpoint.
type Record struct {
	Model   nn.ModelConfig `json:"model"`
	Train   TrainParams    `json:"train"`
	Metrics RunMetrics     `json:"metrics"`
}

// nameValues returns the identifying values of the record in a fixed order.
// Metrics are excluded so the name is stable across epochs.
func (r Record) nameValues() []string {
	dims := make([]string, len(r.Model.DimLayers))
	for i, d := range r.Model.DimLayers {
		dims[i] = fmt.Sprint(d)
	}
	return []string{
		fmt.Sprint(r.Model.InChannels),
		fmt.Sprint(r.Model.OutChannels),
		"[" + strings.Join(dims, "-") + "]",
		fmt.Sprint(r.Model.BlockConvLayers),
		fmt.Sprint(r.Model.Residual),
		fmt.Sprint(r.Model.MaxPooling),
		fmt.Sprint(r.Train.LR),
		r.Train.OptimizerName,
		fmt.Sprint(r.Train.BatchSize),
		r.Train.SchedulerMode,
		fmt.Sprint(r.Train.LossAgeWeight),
		r.Train.Suffix,
	}
}

// RunName derives a deterministic, filesystem-safe folder name from the
// record's configuration values.
func (r Record) RunName() string {
	return sanitize(strings.Join(r.nameValues(), "_"))
}

// PeriodicName is the folder name of a periodic (non-best) save at the given
// one-based epoch.
func (r Record) PeriodicName(epoch int) string {
	return fmt.Sprintf("%s_%d", r.RunName(), epoch)
}

// LogName derives the scalar log run name: key=value pairs joined into a path.
func (r Record) LogName() string {
	keys := []string{
		"in_channels", "out_channels", "dim_layers", "block_conv_layers",
		"residual", "max_pooling",
		"train_lr", "train_optimizer_name", "train_batch_size",
		"train_scheduler_mode", "train_loss_age_weight", "train_suffix",
	}
	values := r.nameValues()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + sanitize(values[i])
	}
	return strings.Join(parts, "/")
}

func sanitize(s string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "=",
		" ", "",
		",", "_",
		"'", "",
	)
	return replacer.Replace(s)
}

// WeightTensor is one serialized model parameter.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// TrainingState captures where a run stopped, for logging and resume.
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	TotalEpochs  int     `json:"total_epochs"`
	LearningRate float64 `json:"learning_rate"`
}

// Metadata identifies the framework that wrote a checkpoint.
type Metadata struct {
	Version   string    `json:"version"`
	Framework string    `json:"framework"`
	CreatedAt time.Time `json:"created_at"`
}

// Checkpoint is a persisted snapshot of model weights plus its record and
// training state.
type Checkpoint struct {
	Record   Record         `json:"record"`
	Weights  []WeightTensor `json:"weights"`
	State    TrainingState  `json:"training_state"`
	Metadata Metadata       `json:"metadata"`
}

// ExtractWeights serializes model parameters in their canonical order.
func ExtractWeights(params []*tensor.Tensor) ([]WeightTensor, error) {
	weights := make([]WeightTensor, 0, len(params))
	for i, param := range params {
		data, err := param.GetFloat32Data()
		if err != nil {
			return nil, fmt.Errorf("failed to extract parameter %d: %w", i, err)
		}
		copied := make([]float32, len(data))
		copy(copied, data)
		shape := make([]int, len(param.Shape))
		copy(shape, param.Shape)
		weights = append(weights, WeightTensor{
			Name:  fmt.Sprintf("param_%03d", i),
			Shape: shape,
			Data:  copied,
		})
	}
	return weights, nil
}

// LoadWeightsInto copies serialized weights back into model parameters,
// validating count and shapes.
func LoadWeightsInto(weights []WeightTensor, params []*tensor.Tensor) error {
	if len(weights) != len(params) {
		return fmt.Errorf("weight count mismatch: %d weights for %d parameters", len(weights), len(params))
	}

	for i, param := range params {
		weight := weights[i]
		if len(weight.Shape) != len(param.Shape) {
			return fmt.Errorf("shape mismatch for %s: checkpoint %v vs model %v", weight.Name, weight.Shape, param.Shape)
		}
		for j, dim := range param.Shape {
			if dim != weight.Shape[j] {
				return fmt.Errorf("dimension mismatch for %s at index %d: checkpoint %d vs model %d",
					weight.Name, j, weight.Shape[j], dim)
			}
		}

		dst, err := param.GetFloat32Data()
		if err != nil {
			return fmt.Errorf("failed to access parameter %d: %w", i, err)
		}
		if len(dst) != len(weight.Data) {
			return fmt.Errorf("element count mismatch for %s: checkpoint %d vs model %d",
				weight.Name, len(weight.Data), len(dst))
		}
		copy(dst, weight.Data)
	}
	return nil
}

// Save writes a checkpoint folder dir/name containing the model weights,
// record and training state as JSON. An existing checkpoint with the same
// name is overwritten.
func Save(dir, name string, model nn.Module, record Record, state TrainingState) error {
	weights, err := ExtractWeights(model.Parameters())
	if err != nil {
		return fmt.Errorf("failed to extract model weights: %w", err)
	}

	checkpoint := &Checkpoint{
		Record:  record,
		Weights: weights,
		State:   state,
		Metadata: Metadata{
			Version:   "1.0.0",
			Framework: "agegenderdetector",
			CreatedAt: time.Now(),
		},
	}

	folder := filepath.Join(dir, name)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint folder: %w", err)
	}

	file, err := os.Create(filepath.Join(folder, CheckpointFile))
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	if err := encoder.Encode(checkpoint); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return nil
}

// Load reads a checkpoint from its folder.
func Load(folder string) (*Checkpoint, error) {
	file, err := os.Open(filepath.Join(folder, CheckpointFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// RestoreModel rebuilds the classifier from the checkpoint's configuration and
// loads the saved weights into it.
func (c *Checkpoint) RestoreModel() (*nn.CNNClassifier, error) {
	model, err := nn.NewCNNClassifier(c.Record.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild model from record: %w", err)
	}
	if err := LoadWeightsInto(c.Weights, model.Parameters()); err != nil {
		return nil, fmt.Errorf("failed to load weights: %w", err)
	}
	return model, nil
}

// List returns the checkpoint folders under dir in sorted order.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var folders []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		folder := filepath.Join(dir, entry.Name())
		if _, err := os.Stat(filepath.Join(folder, CheckpointFile)); err == nil {
			folders = append(folders, folder)
		}
	}
	sort.Strings(folders)
	return folders, nil
}

// SaveResults writes the record as a sidecar results file next to the
// checkpoint, named after the checkpoint folder.
func SaveResults(folder string, record Record) error {
	name := filepath.Base(folder) + ".results.json"
	file, err := os.Create(filepath.Join(folder, name))
	if err != nil {
		return fmt.Errorf("failed to create results file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(record); err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return nil
}
