package preprocessing

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"sync"

	"github.com/OscarLlorente/AgeGenderDetector/tensor"
)

// ImageProcessor decodes face images and resizes them to a fixed square size,
// producing CHW float32 data in [0, 1]. Buffers are reused across calls, so a
// processor is not safe for concurrent use without the internal lock.
type ImageProcessor struct {
	mu            sync.Mutex
	processBuffer []float32
	targetSize    int
}

// NewImageProcessor creates a processor resizing to (targetSize, targetSize).
func NewImageProcessor(targetSize int) *ImageProcessor {
	return &ImageProcessor{targetSize: targetSize}
}

// TargetSize returns the square edge length images are resized to.
func (p *ImageProcessor) TargetSize() int {
	return p.targetSize
}

// ProcessedImage is a decoded image ready for model input.
type ProcessedImage struct {
	Data     []float32
	Width    int
	Height   int
	Channels int
}

// ToTensor returns the image as a [1, channels, height, width] tensor.
func (img *ProcessedImage) ToTensor() (*tensor.Tensor, error) {
	data := make([]float32, len(img.Data))
	copy(data, img.Data)
	return tensor.NewTensor([]int{1, img.Channels, img.Height, img.Width}, tensor.Float32, data)
}

// DecodeAndPreprocess decodes a JPEG or PNG image, resizes it with nearest
// neighbour sampling, and returns CHW float32 data normalized to [0, 1].
func (p *ImageProcessor) DecodeAndPreprocess(reader io.Reader) (*ProcessedImage, error) {
	img, _, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("image has zero size %dx%d", width, height)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	size := p.targetSize
	plane := size * size
	required := 3 * plane
	if len(p.processBuffer) < required {
		p.processBuffer = make([]float32, required)
	}
	data := p.processBuffer[:required]

	scaleX := float64(width) / float64(size)
	scaleY := float64(height) / float64(size)

	for y := 0; y < size; y++ {
		srcY := bounds.Min.Y + int(float64(y)*scaleY)
		if srcY >= bounds.Max.Y {
			srcY = bounds.Max.Y - 1
		}
		for x := 0; x < size; x++ {
			srcX := bounds.Min.X + int(float64(x)*scaleX)
			if srcX >= bounds.Max.X {
				srcX = bounds.Max.X - 1
			}

			r, g, b, _ := img.At(srcX, srcY).RGBA()
			idx := y*size + x
			data[idx] = float32(r) / 65535.0
			data[plane+idx] = float32(g) / 65535.0
			data[2*plane+idx] = float32(b) / 65535.0
		}
	}

	// Copy out of the reusable buffer.
	result := make([]float32, required)
	copy(result, data)

	return &ProcessedImage{
		Data:     result,
		Width:    size,
		Height:   size,
		Channels: 3,
	}, nil
}

// ProcessFile decodes and preprocesses an image file from disk.
func (p *ImageProcessor) ProcessFile(path string) (*ProcessedImage, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer file.Close()
	return p.DecodeAndPreprocess(file)
}

// PreprocessBatch decodes several images concurrently with a small worker
// pool. Results preserve input order; the first error aborts the batch.
func PreprocessBatch(imagePaths []string, targetSize int, maxWorkers int) ([]*ProcessedImage, error) {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	results := make([]*ProcessedImage, len(imagePaths))
	errs := make([]error, len(imagePaths))

	type job struct {
		index int
		path  string
	}

	jobs := make(chan job, len(imagePaths))
	var wg sync.WaitGroup

	for w := 0; w < maxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processor := NewImageProcessor(targetSize)
			for j := range jobs {
				img, err := processor.ProcessFile(j.path)
				if err != nil {
					errs[j.index] = err
					continue
				}
				results[j.index] = img
			}
		}()
	}

	for i, path := range imagePaths {
		jobs <- job{index: i, path: path}
	}
	close(jobs)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("failed to process image %s: %w", imagePaths[i], err)
		}
	}
	return results, nil
}
