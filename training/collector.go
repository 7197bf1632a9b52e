package training

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// ScalarPoint is one value of a named scalar series, keyed by epoch.
type ScalarPoint struct {
	Step  int     `json:"step"`
	Value float64 `json:"value"`
}

// ScalarCollector accumulates named per-epoch scalar series for a training
// run and persists them as JSON under logDir/runName. It is the log sink the
// trainer emits its metric time series to.
type ScalarCollector struct {
	logDir  string
	runName string

	mu     sync.Mutex
	series map[string][]ScalarPoint
}

// NewScalarCollector creates a collector for one training run.
func NewScalarCollector(logDir, runName string) *ScalarCollector {
	return &ScalarCollector{
		logDir:  logDir,
		runName: runName,
		series:  make(map[string][]ScalarPoint),
	}
}

// Add appends a value to the named series.
func (c *ScalarCollector) Add(name string, step int, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.series[name] = append(c.series[name], ScalarPoint{Step: step, Value: value})
}

// Series returns a copy of the named series, nil when absent.
func (c *ScalarCollector) Series(name string) []ScalarPoint {
	c.mu.Lock()
	defer c.mu.Unlock()

	points := c.series[name]
	if points == nil {
		return nil
	}
	out := make([]ScalarPoint, len(points))
	copy(out, points)
	return out
}

// SeriesNames returns the sorted names of all collected series.
func (c *ScalarCollector) SeriesNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.series))
	for name := range c.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type scalarLog struct {
	RunName   string                   `json:"run_name"`
	WrittenAt time.Time                `json:"written_at"`
	Series    map[string][]ScalarPoint `json:"series"`
}

// Save writes all collected series to logDir/runName/scalars.json,
// overwriting any previous snapshot of the same run.
func (c *ScalarCollector) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := filepath.Join(c.logDir, c.runName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.Create(filepath.Join(dir, "scalars.json"))
	if err != nil {
		return fmt.Errorf("failed to create scalar log: %w", err)
	}
	defer file.Close()

	log := scalarLog{
		RunName:   c.runName,
		WrittenAt: time.Now(),
		Series:    c.series,
	}
	if err := json.NewEncoder(file).Encode(log); err != nil {
		return fmt.Errorf("failed to encode scalar log: %w", err)
	}
	return nil
}
