package coverage

import (
	"fmt"
	"sync"

	"github.com/cybertec-postgresql/pgcov/internal/instrument"
	"github.com/cybertec-postgresql/pgcov/internal/sqltest"
)

// Collector aggregates coverage signals observed across test results into a
// single Coverage tree, keyed by file and line.
type Collector struct {
	coverage *Coverage
	mu       sync.Mutex // protects coverage during parallel result collection
}

// NewCollector creates a new coverage collector
func NewCollector() *Collector {
	return &Collector{
		coverage: NewCoverage(),
	}
}

// CollectFromResult processes the coverage signals carried by a single test
// result.
func (c *Collector) CollectFromResult(result sqltest.TestResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, signalID := range result.CoverageSignals {
		if err := c.addSignalUnsafe(signalID); err != nil {
			return fmt.Errorf("failed to process signal %s: %w", signalID, err)
		}
	}
	return nil
}

// CollectFromResults processes coverage signals from every result produced by
// a test run.
func (c *Collector) CollectFromResults(results []sqltest.TestResult) error {
	for _, result := range results {
		if err := c.CollectFromResult(result); err != nil {
			return err
		}
	}
	return nil
}

// AddSignal adds a single coverage signal, identified by its formatted signal
// ID, to the aggregated coverage.
func (c *Collector) AddSignal(signalID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addSignalUnsafe(signalID)
}

// addSignalUnsafe adds a signal without locking (internal use when lock is already held)
func (c *Collector) addSignalUnsafe(signalID string) error {
	file, line, branch, err := instrument.ParseSignalID(signalID)
	if err != nil {
		return fmt.Errorf("invalid signal ID: %w", err)
	}

	fc, ok := c.coverage.Files[file]
	if !ok {
		fc = NewFileCoverage(file)
		c.coverage.Files[file] = fc
	}

	if branch == "" {
		hitCount := 1
		if existing, exists := fc.Lines[line]; exists {
			hitCount = existing.HitCount + 1
		}
		fc.AddLine(line, hitCount)
		return nil
	}

	branchKey := fmt.Sprintf("%d:%s", line, branch)
	hitCount := 1
	if existing, exists := fc.Branches[branchKey]; exists {
		hitCount = existing.HitCount + 1
	}
	fc.AddBranch(branchKey, hitCount)
	return nil
}

// Coverage returns the aggregated coverage data
func (c *Collector) Coverage() *Coverage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coverage
}

// Reset clears all collected coverage data
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coverage = NewCoverage()
}

// Merge merges another coverage collector's data into this one
func (c *Collector) Merge(other *Collector) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	other.mu.Lock()
	defer other.mu.Unlock()

	for file, otherFC := range other.coverage.Files {
		fc, ok := c.coverage.Files[file]
		if !ok {
			fc = NewFileCoverage(file)
			c.coverage.Files[file] = fc
		}
		for line, lc := range otherFC.Lines {
			hitCount := lc.HitCount
			if existing, exists := fc.Lines[line]; exists {
				hitCount += existing.HitCount
			}
			fc.AddLine(line, hitCount)
		}
		for branchKey, bc := range otherFC.Branches {
			hitCount := bc.HitCount
			if existing, exists := fc.Branches[branchKey]; exists {
				hitCount += existing.HitCount
			}
			fc.AddBranch(branchKey, hitCount)
		}
	}
	return nil
}

// GetFileCoverage returns coverage data for a specific file, or nil if the
// file was never observed.
func (c *Collector) GetFileCoverage(filePath string) *FileCoverage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coverage.Files[filePath]
}

// GetFileList returns a list of all files with coverage data
func (c *Collector) GetFileList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var files []string
	for file := range c.coverage.Files {
		files = append(files, file)
	}
	return files
}

// TotalCoveragePercent returns the overall coverage percentage
func (c *Collector) TotalCoveragePercent() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coverage.TotalLineCoveragePercent()
}
