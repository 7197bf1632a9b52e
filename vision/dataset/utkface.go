package dataset

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Sample is one labeled face image: the file path, the subject's age and a
// binary gender label (0 or 1).
type Sample struct {
	Path   string
	Age    float32
	Gender int
}

// UTKFace is a folder dataset of face images whose labels are encoded in the
// filename as "<age>_<gender>_...". Files that do not match are skipped.
type UTKFace struct {
	samples []Sample
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Load scans root for labeled face images. Samples are sorted by path so the
// dataset order is stable across runs.
func Load(root string) (*UTKFace, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset directory: %w", err)
	}

	dataset := &UTKFace{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !imageExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}

		age, gender, ok := parseLabels(name)
		if !ok {
			continue
		}
		dataset.samples = append(dataset.samples, Sample{
			Path:   filepath.Join(root, name),
			Age:    age,
			Gender: gender,
		})
	}

	if len(dataset.samples) == 0 {
		return nil, fmt.Errorf("no labeled face images found in %s", root)
	}

	sort.Slice(dataset.samples, func(i, j int) bool {
		return dataset.samples[i].Path < dataset.samples[j].Path
	})
	return dataset, nil
}

// parseLabels extracts age and gender from a "<age>_<gender>_..." filename.
func parseLabels(name string) (age float32, gender int, ok bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.SplitN(base, "_", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}

	ageVal, err := strconv.Atoi(parts[0])
	if err != nil || ageVal < 0 {
		return 0, 0, false
	}
	genderVal, err := strconv.Atoi(parts[1])
	if err != nil || (genderVal != 0 && genderVal != 1) {
		return 0, 0, false
	}
	return float32(ageVal), genderVal, true
}

// FromSamples builds a dataset from an explicit sample list. Used by tests and
// by Split.
func FromSamples(samples []Sample) *UTKFace {
	return &UTKFace{samples: samples}
}

// Len returns the number of samples.
func (d *UTKFace) Len() int {
	return len(d.samples)
}

// Sample returns the sample at the given index.
func (d *UTKFace) Sample(index int) (Sample, error) {
	if index < 0 || index >= len(d.samples) {
		return Sample{}, fmt.Errorf("index %d out of range [0, %d)", index, len(d.samples))
	}
	return d.samples[index], nil
}

// GenderDistribution returns the sample count per gender label.
func (d *UTKFace) GenderDistribution() map[int]int {
	dist := make(map[int]int)
	for _, s := range d.samples {
		dist[s.Gender]++
	}
	return dist
}

// Split partitions the dataset into train, validation and test subsets using a
// seeded shuffle, so the same seed always yields the same partition.
func (d *UTKFace) Split(seed int64, trainRatio, valRatio float64) (train, val, test *UTKFace, err error) {
	if trainRatio <= 0 || valRatio < 0 || trainRatio+valRatio >= 1 {
		return nil, nil, nil, fmt.Errorf("invalid split ratios train=%f val=%f", trainRatio, valRatio)
	}

	n := len(d.samples)
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(n, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	trainSize := int(float64(n) * trainRatio)
	valSize := int(float64(n) * valRatio)

	pick := func(idx []int) *UTKFace {
		samples := make([]Sample, len(idx))
		for i, j := range idx {
			samples[i] = d.samples[j]
		}
		return &UTKFace{samples: samples}
	}

	train = pick(indices[:trainSize])
	val = pick(indices[trainSize : trainSize+valSize])
	test = pick(indices[trainSize+valSize:])
	return train, val, test, nil
}

func (d *UTKFace) String() string {
	dist := d.GenderDistribution()
	return fmt.Sprintf("UTKFace: %d samples (gender 0: %d, gender 1: %d)",
		len(d.samples), dist[0], dist[1])
}
