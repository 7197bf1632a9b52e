package training

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/OscarLlorente/AgeGenderDetector/checkpoints"
	"github.com/OscarLlorente/AgeGenderDetector/nn"
	"github.com/OscarLlorente/AgeGenderDetector/tensor"
	"github.com/OscarLlorente/AgeGenderDetector/vision/preprocessing"
)

// PredictAgeGender runs inference over a list of image files and returns an
// [N, 2] tensor with one row per input, in input order. Column 0 holds the
// gender: the sigmoid probability when returnPr is true, otherwise the hard
// 0/1 label at the 0.5 threshold. Column 1 holds the predicted age, clamped
// to be non-negative.
//
// Images are resized to the size the checkpoint was trained at, read from the
// record's suffix. The final batch shrinks so that exactly N rows come back
// for N inputs.
func PredictAgeGender(model *nn.CNNClassifier, record checkpoints.Record, imagePaths []string, returnPr bool, batchSize, numWorkers int) (*tensor.Tensor, error) {
	if len(imagePaths) == 0 {
		return nil, fmt.Errorf("no image paths given")
	}
	if batchSize <= 0 {
		batchSize = 64
	}
	if batchSize > len(imagePaths) {
		batchSize = len(imagePaths)
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}

	imageSize := trainImageSize(record.Train.Suffix)
	model.Eval()

	out := make([]float32, 0, len(imagePaths)*2)
	for start := 0; start < len(imagePaths); start += batchSize {
		end := start + batchSize
		if end > len(imagePaths) {
			end = len(imagePaths)
		}

		images, err := preprocessing.PreprocessBatch(imagePaths[start:end], imageSize, numWorkers)
		if err != nil {
			return nil, fmt.Errorf("failed to preprocess batch at %d: %w", start, err)
		}

		batchTensors := make([]*tensor.Tensor, len(images))
		for i, img := range images {
			t, err := img.ToTensor()
			if err != nil {
				return nil, fmt.Errorf("failed to build tensor for %s: %w", imagePaths[start+i], err)
			}
			batchTensors[i] = t
		}
		input, err := tensor.Cat(batchTensors)
		if err != nil {
			return nil, fmt.Errorf("failed to assemble batch at %d: %w", start, err)
		}

		pred, err := model.Forward(input)
		if err != nil {
			return nil, fmt.Errorf("forward pass failed at %d: %w", start, err)
		}
		logits, ages, err := splitOutput(pred.Detach())
		if err != nil {
			return nil, err
		}

		for i := range logits {
			gender := sigmoid(logits[i])
			if !returnPr {
				if gender > 0.5 {
					gender = 1
				} else {
					gender = 0
				}
			}
			age := float32(math.Sqrt(float64(ages[i]) * float64(ages[i])))
			out = append(out, gender, age)
		}
	}

	return tensor.NewTensor([]int{len(imagePaths), 2}, tensor.Float32, out)
}

func sigmoid(x float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(x))))
}

// parseImageSize parses a numeric image-size suffix such as "200".
func parseImageSize(suffix string) (int, error) {
	size, err := strconv.Atoi(strings.TrimSpace(suffix))
	if err != nil {
		return 0, fmt.Errorf("suffix %q is not an image size: %w", suffix, err)
	}
	if size <= 0 {
		return 0, fmt.Errorf("image size must be positive, got %d", size)
	}
	return size, nil
}
