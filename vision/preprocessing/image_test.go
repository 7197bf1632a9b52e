package preprocessing

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func mockImage(width, height int, base color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			factor := float64(x+y) / float64(width+height)
			img.Set(x, y, color.RGBA{
				R: uint8(float64(base.R) * factor),
				G: uint8(float64(base.G) * factor),
				B: uint8(float64(base.B) * factor),
				A: 255,
			})
		}
	}
	return img
}

func mockJPEG(t testing.TB, width, height int, base color.RGBA) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, mockImage(width, height, base), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode test JPEG: %v", err)
	}
	return buf.Bytes()
}

func writeJPEG(t testing.TB, path string, width, height int, base color.RGBA) {
	t.Helper()
	if err := os.WriteFile(path, mockJPEG(t, width, height, base), 0o644); err != nil {
		t.Fatalf("failed to write test JPEG: %v", err)
	}
}

func TestDecodeAndPreprocessJPEG(t *testing.T) {
	processor := NewImageProcessor(64)

	data := mockJPEG(t, 100, 100, color.RGBA{R: 255, G: 128, B: 64, A: 255})
	result, err := processor.DecodeAndPreprocess(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeAndPreprocess failed: %v", err)
	}

	if result.Width != 64 || result.Height != 64 || result.Channels != 3 {
		t.Errorf("expected 3x64x64 output, got %dx%dx%d", result.Channels, result.Height, result.Width)
	}
	if len(result.Data) != 3*64*64 {
		t.Errorf("expected %d values, got %d", 3*64*64, len(result.Data))
	}
	for i, v := range result.Data {
		if v < 0 || v > 1 || math.IsNaN(float64(v)) {
			t.Fatalf("value %f at index %d outside [0, 1]", v, i)
		}
	}

	// Middle of a gradient image must not be black.
	mid := 32*64 + 32
	if result.Data[mid] == 0 && result.Data[64*64+mid] == 0 && result.Data[2*64*64+mid] == 0 {
		t.Error("expected non-zero color values in gradient image center")
	}
}

func TestDecodeAndPreprocessPNG(t *testing.T) {
	processor := NewImageProcessor(32)

	var buf bytes.Buffer
	if err := png.Encode(&buf, mockImage(50, 80, color.RGBA{R: 10, G: 200, B: 30, A: 255})); err != nil {
		t.Fatalf("failed to encode test PNG: %v", err)
	}

	result, err := processor.DecodeAndPreprocess(&buf)
	if err != nil {
		t.Fatalf("PNG decoding failed: %v", err)
	}
	if result.Width != 32 || result.Height != 32 {
		t.Errorf("expected 32x32 output, got %dx%d", result.Height, result.Width)
	}
}

func TestDecodeAndPreprocessInvalidData(t *testing.T) {
	processor := NewImageProcessor(64)

	if _, err := processor.DecodeAndPreprocess(bytes.NewReader([]byte("not an image"))); err == nil {
		t.Error("expected error for invalid image data")
	}
	if _, err := processor.DecodeAndPreprocess(bytes.NewReader(nil)); err == nil {
		t.Error("expected error for empty reader")
	}
}

func TestDecodeAndPreprocessResizes(t *testing.T) {
	// Tiny, large and rectangular sources all resize to the target square.
	cases := []struct {
		name          string
		width, height int
	}{
		{"tiny", 1, 1},
		{"large", 600, 600},
		{"wide", 200, 100},
	}

	processor := NewImageProcessor(48)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := mockJPEG(t, tc.width, tc.height, color.RGBA{R: 120, G: 140, B: 160, A: 255})
			result, err := processor.DecodeAndPreprocess(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("DecodeAndPreprocess failed: %v", err)
			}
			if result.Width != 48 || result.Height != 48 {
				t.Errorf("expected 48x48, got %dx%d", result.Height, result.Width)
			}
		})
	}
}

func TestProcessedImageToTensor(t *testing.T) {
	processor := NewImageProcessor(16)
	data := mockJPEG(t, 32, 32, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	img, err := processor.DecodeAndPreprocess(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeAndPreprocess failed: %v", err)
	}

	tens, err := img.ToTensor()
	if err != nil {
		t.Fatalf("ToTensor failed: %v", err)
	}

	want := []int{1, 3, 16, 16}
	if len(tens.Shape) != 4 {
		t.Fatalf("expected 4D tensor, got shape %v", tens.Shape)
	}
	for i := range want {
		if tens.Shape[i] != want[i] {
			t.Fatalf("expected shape %v, got %v", want, tens.Shape)
		}
	}
}

func TestPreprocessBatch(t *testing.T) {
	tempDir := t.TempDir()
	colors := []color.RGBA{
		{R: 255, A: 255},
		{G: 255, A: 255},
		{B: 255, A: 255},
		{R: 255, G: 255, A: 255},
	}

	paths := make([]string, len(colors))
	for i, c := range colors {
		paths[i] = filepath.Join(tempDir, fmt.Sprintf("img_%d.jpg", i))
		writeJPEG(t, paths[i], 100, 100, c)
	}

	t.Run("valid batch preserves order", func(t *testing.T) {
		results, err := PreprocessBatch(paths, 64, 2)
		if err != nil {
			t.Fatalf("PreprocessBatch failed: %v", err)
		}
		if len(results) != len(paths) {
			t.Fatalf("expected %d results, got %d", len(paths), len(results))
		}
		for i, result := range results {
			if result == nil || result.Width != 64 || result.Height != 64 {
				t.Errorf("result %d: unexpected output", i)
			}
		}
	})

	t.Run("zero workers defaults to one", func(t *testing.T) {
		results, err := PreprocessBatch(paths[:2], 32, 0)
		if err != nil {
			t.Fatalf("PreprocessBatch failed: %v", err)
		}
		if len(results) != 2 {
			t.Errorf("expected 2 results, got %d", len(results))
		}
	})

	t.Run("missing file aborts batch", func(t *testing.T) {
		mixed := []string{paths[0], filepath.Join(tempDir, "missing.jpg")}
		if _, err := PreprocessBatch(mixed, 32, 1); err == nil {
			t.Error("expected error when a file cannot be processed")
		}
	})

	t.Run("empty batch", func(t *testing.T) {
		results, err := PreprocessBatch(nil, 32, 1)
		if err != nil {
			t.Fatalf("unexpected error for empty batch: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("expected 0 results, got %d", len(results))
		}
	})
}

func BenchmarkDecodeAndPreprocess(b *testing.B) {
	processor := NewImageProcessor(224)
	data := mockJPEG(b, 300, 300, color.RGBA{R: 128, G: 128, B: 128, A: 255})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := processor.DecodeAndPreprocess(bytes.NewReader(data)); err != nil {
			b.Fatalf("processing error: %v", err)
		}
	}
}
