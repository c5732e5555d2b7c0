package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/cybertec-postgresql/pgcov/internal/coverage"
)

// LCOVReporter formats coverage data in LCOV format
// LCOV format specification: https://github.com/linux-test-project/lcov
type LCOVReporter struct{}

// NewLCOVReporter creates a new LCOV reporter
func NewLCOVReporter() *LCOVReporter {
	return &LCOVReporter{}
}

// Format formats coverage data as LCOV and writes to the writer
func (r *LCOVReporter) Format(cov *coverage.Coverage, writer io.Writer) error {
	// Sort files for deterministic output
	var files []string
	for file := range cov.Files {
		files = append(files, file)
	}
	sort.Strings(files)

	for _, file := range files {
		if err := r.formatFile(file, cov.Files[file], writer); err != nil {
			return err
		}
	}

	return nil
}

// formatFile formats a single file's coverage in LCOV format
func (r *LCOVReporter) formatFile(path string, fc *coverage.FileCoverage, writer io.Writer) error {
	// SF:<source file path>
	if _, err := fmt.Fprintf(writer, "SF:%s\n", path); err != nil {
		return err
	}

	var lines []int
	for line := range fc.Lines {
		lines = append(lines, line)
	}
	sort.Ints(lines)

	linesHit := 0
	for _, line := range lines {
		hitCount := fc.Lines[line].HitCount
		if _, err := fmt.Fprintf(writer, "DA:%d,%d\n", line, hitCount); err != nil {
			return err
		}
		if hitCount > 0 {
			linesHit++
		}
	}

	// LF:<number of instrumented lines>
	if _, err := fmt.Fprintf(writer, "LF:%d\n", len(lines)); err != nil {
		return err
	}

	// LH:<number of lines with non-zero execution count>
	if _, err := fmt.Fprintf(writer, "LH:%d\n", linesHit); err != nil {
		return err
	}

	// BRDA:<line>,<block>,<branch>,<taken> / BRF / BRH for branch coverage
	var branchKeys []string
	for key := range fc.Branches {
		branchKeys = append(branchKeys, key)
	}
	sort.Strings(branchKeys)

	branchesHit := 0
	for i, key := range branchKeys {
		bc := fc.Branches[key]
		line, branchLabel := splitBranchKey(key)
		taken := "-"
		if bc.HitCount > 0 {
			taken = fmt.Sprintf("%d", bc.HitCount)
			branchesHit++
		}
		if _, err := fmt.Fprintf(writer, "BRDA:%d,0,%s,%s\n", line, branchIdentifier(i, branchLabel), taken); err != nil {
			return err
		}
	}
	if len(branchKeys) > 0 {
		if _, err := fmt.Fprintf(writer, "BRF:%d\n", len(branchKeys)); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(writer, "BRH:%d\n", branchesHit); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(writer, "end_of_record\n"); err != nil {
		return err
	}

	return nil
}

// splitBranchKey splits a "line:branch" BranchID back into its parts.
func splitBranchKey(key string) (line int, branch string) {
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			fmt.Sscanf(key[:i], "%d", &line)
			return line, key[i+1:]
		}
	}
	fmt.Sscanf(key, "%d", &line)
	return line, ""
}

func branchIdentifier(index int, label string) string {
	if label == "" {
		return fmt.Sprintf("%d", index)
	}
	return label
}

// FormatString returns coverage data as an LCOV-formatted string
func (r *LCOVReporter) FormatString(cov *coverage.Coverage) (string, error) {
	var buf []byte
	writer := &byteWriter{data: &buf}
	if err := r.Format(cov, writer); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Name returns the name of this reporter
func (r *LCOVReporter) Name() string {
	return "lcov"
}

// byteWriter is a simple io.Writer that writes to a byte slice
type byteWriter struct {
	data *[]byte
}

func (w *byteWriter) Write(p []byte) (n int, err error) {
	*w.data = append(*w.data, p...)
	return len(p), nil
}
