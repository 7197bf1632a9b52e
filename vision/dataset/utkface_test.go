package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func writeFakeDataset(t *testing.T, names []string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadParsesFilenames(t *testing.T) {
	dir := writeFakeDataset(t, []string{
		"25_0_0_20170101.jpg",
		"60_1_2_20170102.jpg",
		"3_1_someface.png",
		"notes.txt",          // not an image
		"badage_0_x.jpg",     // unparsable age
		"30_7_x.jpg",         // gender out of range
		"justonenumber.jpeg", // too few fields
	})

	ds, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ds.Len() != 3 {
		t.Fatalf("expected 3 parsed samples, got %d", ds.Len())
	}

	// Sorted by path, so 25_0 comes first.
	s, err := ds.Sample(0)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if s.Age != 25 || s.Gender != 0 {
		t.Errorf("expected age 25 gender 0, got age %f gender %d", s.Age, s.Gender)
	}

	dist := ds.GenderDistribution()
	if dist[0] != 1 || dist[1] != 2 {
		t.Errorf("unexpected gender distribution: %v", dist)
	}
}

func TestLoadEmptyDirectory(t *testing.T) {
	dir := writeFakeDataset(t, []string{"readme.md"})
	if _, err := Load(dir); err == nil {
		t.Error("expected error for directory without labeled images")
	}
	if _, err := Load(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestSampleOutOfRange(t *testing.T) {
	ds := FromSamples([]Sample{{Path: "a", Age: 1, Gender: 0}})
	if _, err := ds.Sample(-1); err == nil {
		t.Error("expected error for negative index")
	}
	if _, err := ds.Sample(1); err == nil {
		t.Error("expected error for index past the end")
	}
}

func TestSplitDeterministicForSeed(t *testing.T) {
	samples := make([]Sample, 100)
	for i := range samples {
		samples[i] = Sample{Path: fmt.Sprintf("img_%03d.jpg", i), Age: float32(i % 80), Gender: i % 2}
	}
	ds := FromSamples(samples)

	train1, val1, test1, err := ds.Split(4444, 0.7, 0.15)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	train2, val2, test2, err := ds.Split(4444, 0.7, 0.15)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if train1.Len() != 70 || val1.Len() != 15 || test1.Len() != 15 {
		t.Errorf("unexpected split sizes: %d/%d/%d", train1.Len(), val1.Len(), test1.Len())
	}

	for i := 0; i < train1.Len(); i++ {
		a, _ := train1.Sample(i)
		b, _ := train2.Sample(i)
		if a.Path != b.Path {
			t.Fatalf("train split differs at %d for identical seed: %s vs %s", i, a.Path, b.Path)
		}
	}
	for i := 0; i < val1.Len(); i++ {
		a, _ := val1.Sample(i)
		b, _ := val2.Sample(i)
		if a.Path != b.Path {
			t.Fatalf("val split differs at %d for identical seed", i)
		}
	}
	for i := 0; i < test1.Len(); i++ {
		a, _ := test1.Sample(i)
		b, _ := test2.Sample(i)
		if a.Path != b.Path {
			t.Fatalf("test split differs at %d for identical seed", i)
		}
	}
}

func TestSplitDiffersAcrossSeeds(t *testing.T) {
	samples := make([]Sample, 50)
	for i := range samples {
		samples[i] = Sample{Path: fmt.Sprintf("img_%03d.jpg", i)}
	}
	ds := FromSamples(samples)

	trainA, _, _, err := ds.Split(1, 0.7, 0.15)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	trainB, _, _, err := ds.Split(2, 0.7, 0.15)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	same := true
	for i := 0; i < trainA.Len(); i++ {
		a, _ := trainA.Sample(i)
		b, _ := trainB.Sample(i)
		if a.Path != b.Path {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds should produce different shuffles")
	}
}

func TestSplitCoversWholeDataset(t *testing.T) {
	samples := make([]Sample, 33)
	for i := range samples {
		samples[i] = Sample{Path: fmt.Sprintf("img_%02d.jpg", i)}
	}
	ds := FromSamples(samples)

	train, val, test, err := ds.Split(7, 0.6, 0.2)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	seen := make(map[string]int)
	for _, part := range []*UTKFace{train, val, test} {
		for i := 0; i < part.Len(); i++ {
			s, _ := part.Sample(i)
			seen[s.Path]++
		}
	}
	if len(seen) != len(samples) {
		t.Errorf("splits cover %d unique samples, want %d", len(seen), len(samples))
	}
	for path, count := range seen {
		if count != 1 {
			t.Errorf("sample %s appears %d times across splits", path, count)
		}
	}
}

func TestSplitRejectsBadRatios(t *testing.T) {
	ds := FromSamples([]Sample{{Path: "a"}, {Path: "b"}})
	if _, _, _, err := ds.Split(1, 0, 0.5); err == nil {
		t.Error("expected error for zero train ratio")
	}
	if _, _, _, err := ds.Split(1, 0.8, 0.3); err == nil {
		t.Error("expected error for ratios summing past 1")
	}
}
