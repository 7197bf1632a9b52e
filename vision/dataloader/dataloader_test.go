package dataloader

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/OscarLlorente/AgeGenderDetector/vision/dataset"
)

func writeFaceImage(t testing.TB, path string, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}
}

func fakeFaceDataset(t testing.TB, n int) (string, *dataset.UTKFace) {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%d_%d_face_%03d.jpg", 20+i, i%2, i)
		writeFaceImage(t, filepath.Join(dir, name), color.RGBA{R: uint8(i * 10), G: 100, B: 50, A: 255})
	}
	ds, err := dataset.Load(dir)
	if err != nil {
		t.Fatalf("failed to load fake dataset: %v", err)
	}
	return dir, ds
}

func TestLoaderBatchShapes(t *testing.T) {
	_, ds := fakeFaceDataset(t, 7)

	loader, err := New(ds, Config{BatchSize: 3, ImageSize: 8, NumWorkers: 2})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	sizes := []int{}
	total := 0
	for {
		batch, err := loader.NextBatch()
		if err != nil {
			t.Fatalf("NextBatch failed: %v", err)
		}
		if batch == nil {
			break
		}
		sizes = append(sizes, batch.Size)
		total += batch.Size

		want := []int{batch.Size, 3, 8, 8}
		for i := range want {
			if batch.Images.Shape[i] != want[i] {
				t.Fatalf("unexpected image shape %v, want %v", batch.Images.Shape, want)
			}
		}
		if batch.Ages.Shape[0] != batch.Size || batch.Genders.Shape[0] != batch.Size {
			t.Fatalf("label tensors do not match batch size %d", batch.Size)
		}
	}

	if total != 7 {
		t.Errorf("expected 7 samples total, got %d", total)
	}
	// The trailing partial batch shrinks instead of being dropped.
	if len(sizes) != 3 || sizes[2] != 1 {
		t.Errorf("expected batch sizes [3 3 1], got %v", sizes)
	}
}

func TestLoaderLabels(t *testing.T) {
	_, ds := fakeFaceDataset(t, 4)

	loader, err := New(ds, Config{BatchSize: 4, ImageSize: 8})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	batch, err := loader.NextBatch()
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	ages, _ := batch.Ages.GetFloat32Data()
	genders, _ := batch.Genders.GetFloat32Data()

	for i := range ages {
		if ages[i] < 20 || ages[i] > 23 {
			t.Errorf("age %f outside expected range", ages[i])
		}
		if genders[i] != 0 && genders[i] != 1 {
			t.Errorf("gender %f is not a binary label", genders[i])
		}
	}
}

func TestLoaderShuffleDeterministicPerSeed(t *testing.T) {
	_, ds := fakeFaceDataset(t, 10)

	ages := func(seed int64) []float32 {
		loader, err := New(ds, Config{BatchSize: 10, ImageSize: 8, Shuffle: true, Seed: seed})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		batch, err := loader.NextBatch()
		if err != nil {
			t.Fatalf("NextBatch failed: %v", err)
		}
		data, _ := batch.Ages.GetFloat32Data()
		return data
	}

	a := ages(4444)
	b := ages(4444)
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same seed must give the same shuffle order")
		}
	}
}

func TestLoaderResetStartsNewEpoch(t *testing.T) {
	_, ds := fakeFaceDataset(t, 4)

	loader, err := New(ds, Config{BatchSize: 4, ImageSize: 8})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if batch, _ := loader.NextBatch(); batch == nil {
		t.Fatal("expected a first batch")
	}
	if batch, _ := loader.NextBatch(); batch != nil {
		t.Fatal("expected exhausted epoch")
	}

	loader.Reset()
	if batch, _ := loader.NextBatch(); batch == nil {
		t.Fatal("expected a batch after Reset")
	}
}

func TestLoaderSharedCache(t *testing.T) {
	_, ds := fakeFaceDataset(t, 5)
	cache := NewCache(16)

	loader, err := New(ds, Config{BatchSize: 5, ImageSize: 8, Cache: cache})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := loader.NextBatch(); err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	loader.Reset()
	if _, err := loader.NextBatch(); err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}

	stats := cache.Stats()
	if stats.Hits == 0 {
		t.Error("second epoch should hit the decoded-image cache")
	}
	if stats.Misses != 5 {
		t.Errorf("expected 5 cold misses, got %d", stats.Misses)
	}
}

func TestLoaderRejectsBadConfig(t *testing.T) {
	_, ds := fakeFaceDataset(t, 2)
	if _, err := New(ds, Config{BatchSize: 0, ImageSize: 8}); err == nil {
		t.Error("expected error for zero batch size")
	}
	if _, err := New(ds, Config{BatchSize: 1, ImageSize: 0}); err == nil {
		t.Error("expected error for zero image size")
	}
}

func TestLoadSplits(t *testing.T) {
	dir, _ := fakeFaceDataset(t, 20)

	train, val, test, err := LoadSplits(dir, SplitConfig{
		BatchSize: 4,
		ImageSize: 8,
		Seed:      4444,
		UseCache:  true,
	})
	if err != nil {
		t.Fatalf("LoadSplits failed: %v", err)
	}

	if train.Len() != 14 || val.Len() != 3 || test.Len() != 3 {
		t.Errorf("unexpected split sizes %d/%d/%d", train.Len(), val.Len(), test.Len())
	}

	// The shared cache is visible from every loader.
	if _, err := train.NextBatch(); err != nil {
		t.Fatalf("train NextBatch failed: %v", err)
	}
	if train.Stats().Misses == 0 {
		t.Error("expected cache misses on the cold first batch")
	}
}

func TestCacheEviction(t *testing.T) {
	cache := NewCache(2)
	cache.Put("a", []float32{1})
	cache.Put("b", []float32{2})
	cache.Put("c", []float32{3})

	if _, ok := cache.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := cache.Get("c"); !ok {
		t.Error("newest entry should remain")
	}
	if stats := cache.Stats(); stats.Size != 2 {
		t.Errorf("expected size 2, got %d", stats.Size)
	}
}

func TestCacheClearKeepsStats(t *testing.T) {
	cache := NewCache(4)
	cache.Put("a", []float32{1})
	cache.Get("a")
	cache.Get("missing")

	cache.Clear()
	stats := cache.Stats()
	if stats.Size != 0 {
		t.Errorf("expected empty cache after Clear, got %d entries", stats.Size)
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Clear should keep cumulative stats, got hits=%d misses=%d", stats.Hits, stats.Misses)
	}
}
