package dataloader

import (
	"fmt"
	"math/rand"
	"os"
	"sync"

	"github.com/OscarLlorente/AgeGenderDetector/tensor"
	"github.com/OscarLlorente/AgeGenderDetector/vision/dataset"
	"github.com/OscarLlorente/AgeGenderDetector/vision/preprocessing"
)

// Batch is one loaded batch: images [B, 3, S, S], ages [B] and genders [B],
// all Float32.
type Batch struct {
	Images  *tensor.Tensor
	Ages    *tensor.Tensor
	Genders *tensor.Tensor
	Size    int
}

// Config holds loader configuration.
type Config struct {
	BatchSize  int
	ImageSize  int
	Shuffle    bool
	Seed       int64
	NumWorkers int
	Cache      *Cache // optional, shared across loaders when set
}

// Loader iterates a face dataset in batches, decoding images concurrently.
// Call Reset to start a new epoch; the train split reshuffles on every reset.
type Loader struct {
	dataset    *dataset.UTKFace
	batchSize  int
	imageSize  int
	shuffle    bool
	numWorkers int
	rng        *rand.Rand
	indices    []int
	position   int
	cache      *Cache
	mu         sync.Mutex
}

// New creates a loader over the given dataset split.
func New(ds *dataset.UTKFace, config Config) (*Loader, error) {
	if config.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", config.BatchSize)
	}
	if config.ImageSize <= 0 {
		return nil, fmt.Errorf("image size must be positive, got %d", config.ImageSize)
	}
	if config.NumWorkers <= 0 {
		config.NumWorkers = 1
	}

	indices := make([]int, ds.Len())
	for i := range indices {
		indices[i] = i
	}

	l := &Loader{
		dataset:    ds,
		batchSize:  config.BatchSize,
		imageSize:  config.ImageSize,
		shuffle:    config.Shuffle,
		numWorkers: config.NumWorkers,
		rng:        rand.New(rand.NewSource(config.Seed)),
		indices:    indices,
		cache:      config.Cache,
	}
	if l.shuffle {
		l.rng.Shuffle(len(l.indices), func(i, j int) {
			l.indices[i], l.indices[j] = l.indices[j], l.indices[i]
		})
	}
	return l, nil
}

// Len returns the number of samples in the underlying split.
func (l *Loader) Len() int {
	return l.dataset.Len()
}

// Reset rewinds the loader for a new epoch, reshuffling when enabled.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.position = 0
	if l.shuffle {
		l.rng.Shuffle(len(l.indices), func(i, j int) {
			l.indices[i], l.indices[j] = l.indices[j], l.indices[i]
		})
	}
}

// NextBatch returns the next batch, shrinking the final one to the remaining
// samples. Returns (nil, nil) when the epoch is exhausted.
func (l *Loader) NextBatch() (*Batch, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := len(l.indices) - l.position
	if remaining <= 0 {
		return nil, nil
	}

	size := l.batchSize
	if remaining < size {
		size = remaining
	}

	samples := make([]dataset.Sample, size)
	for i := 0; i < size; i++ {
		s, err := l.dataset.Sample(l.indices[l.position+i])
		if err != nil {
			return nil, fmt.Errorf("failed to read sample: %w", err)
		}
		samples[i] = s
	}
	l.position += size

	pixels := 3 * l.imageSize * l.imageSize
	imageData := make([]float32, size*pixels)
	ageData := make([]float32, size)
	genderData := make([]float32, size)

	if err := l.decodeInto(samples, imageData, pixels); err != nil {
		return nil, err
	}
	for i, s := range samples {
		ageData[i] = s.Age
		genderData[i] = float32(s.Gender)
	}

	images, err := tensor.NewTensor([]int{size, 3, l.imageSize, l.imageSize}, tensor.Float32, imageData)
	if err != nil {
		return nil, fmt.Errorf("failed to build image tensor: %w", err)
	}
	ages, err := tensor.NewTensor([]int{size}, tensor.Float32, ageData)
	if err != nil {
		return nil, fmt.Errorf("failed to build age tensor: %w", err)
	}
	genders, err := tensor.NewTensor([]int{size}, tensor.Float32, genderData)
	if err != nil {
		return nil, fmt.Errorf("failed to build gender tensor: %w", err)
	}

	return &Batch{Images: images, Ages: ages, Genders: genders, Size: size}, nil
}

// decodeInto fills imageData with the decoded samples, using the worker pool
// for cache misses.
func (l *Loader) decodeInto(samples []dataset.Sample, imageData []float32, pixels int) error {
	type job struct {
		index int
		path  string
	}

	jobs := make(chan job, len(samples))
	errs := make([]error, len(samples))
	var wg sync.WaitGroup

	workers := l.numWorkers
	if workers > len(samples) {
		workers = len(samples)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processor := preprocessing.NewImageProcessor(l.imageSize)
			for j := range jobs {
				data, err := l.loadImage(processor, j.path)
				if err != nil {
					errs[j.index] = err
					continue
				}
				copy(imageData[j.index*pixels:(j.index+1)*pixels], data)
			}
		}()
	}

	for i, s := range samples {
		jobs <- job{index: i, path: s.Path}
	}
	close(jobs)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("failed to load image %s: %w", samples[i].Path, err)
		}
	}
	return nil
}

func (l *Loader) loadImage(processor *preprocessing.ImageProcessor, path string) ([]float32, error) {
	if l.cache != nil {
		if data, ok := l.cache.Get(path); ok {
			return data, nil
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, err := processor.DecodeAndPreprocess(file)
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		l.cache.Put(path, img.Data)
	}
	return img.Data, nil
}

// Stats returns cache statistics, or zeroes when caching is disabled.
func (l *Loader) Stats() CacheStats {
	if l.cache == nil {
		return CacheStats{}
	}
	return l.cache.Stats()
}

// SplitConfig configures LoadSplits.
type SplitConfig struct {
	BatchSize  int
	ImageSize  int
	NumWorkers int
	Seed       int64
	TrainRatio float64
	ValRatio   float64
	UseCache   bool
}

// LoadSplits loads the dataset at dataPath and returns train, validation and
// test loaders over a seeded deterministic split. With UseCache the three
// loaders share one decoded-image cache sized to the whole dataset.
func LoadSplits(dataPath string, config SplitConfig) (train, val, test *Loader, err error) {
	if config.TrainRatio == 0 {
		config.TrainRatio = 0.7
	}
	if config.ValRatio == 0 {
		config.ValRatio = 0.15
	}

	ds, err := dataset.Load(dataPath)
	if err != nil {
		return nil, nil, nil, err
	}

	trainDS, valDS, testDS, err := ds.Split(config.Seed, config.TrainRatio, config.ValRatio)
	if err != nil {
		return nil, nil, nil, err
	}

	var cache *Cache
	if config.UseCache {
		cache = NewCache(ds.Len())
	}

	base := Config{
		BatchSize:  config.BatchSize,
		ImageSize:  config.ImageSize,
		NumWorkers: config.NumWorkers,
		Seed:       config.Seed,
		Cache:      cache,
	}

	trainCfg := base
	trainCfg.Shuffle = true
	if train, err = New(trainDS, trainCfg); err != nil {
		return nil, nil, nil, err
	}
	if val, err = New(valDS, base); err != nil {
		return nil, nil, nil, err
	}
	if test, err = New(testDS, base); err != nil {
		return nil, nil, nil, err
	}
	return train, val, test, nil
}
