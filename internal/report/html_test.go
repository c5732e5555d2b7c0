package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/cybertec-postgresql/pgcov/internal/coverage"
)

func coverageWithLines(files map[string]map[int]int) *coverage.Coverage {
	cov := coverage.NewCoverage()
	for path, hits := range files {
		fc := coverage.NewFileCoverage(path)
		for line, hitCount := range hits {
			fc.AddLine(line, hitCount)
		}
		cov.Files[path] = fc
	}
	cov.Timestamp = time.Now()
	return cov
}

func TestHTMLReporter_Format(t *testing.T) {
	cov := coverageWithLines(map[string]map[int]int{
		"test.sql": {1: 5, 2: 3, 3: 0},
	})

	reporter := NewHTMLReporter()

	t.Run("Format", func(t *testing.T) {
		var buf bytes.Buffer
		if err := reporter.Format(cov, &buf); err != nil {
			t.Fatalf("Format failed: %v", err)
		}

		output := buf.String()

		requiredElements := []string{
			"<!DOCTYPE html>",
			"<html",
			"<head>",
			"<body>",
			"</html>",
			"Coverage Report",
			"pgcov",
		}
		for _, elem := range requiredElements {
			if !strings.Contains(output, elem) {
				t.Errorf("Missing required HTML element: %s", elem)
			}
		}

		if !strings.Contains(output, "test.sql") {
			t.Error("File test.sql not found in HTML output")
		}

		hasCoverage := strings.Contains(output, "cov0") || strings.Contains(output, "cov1")
		if !hasCoverage {
			t.Error("Missing coverage indicators (cov0, cov1, etc.)")
		}
	})

	t.Run("FormatString", func(t *testing.T) {
		output, err := reporter.FormatString(cov)
		if err != nil {
			t.Fatalf("FormatString failed: %v", err)
		}
		if !strings.Contains(output, "<!DOCTYPE html>") {
			t.Error("Missing DOCTYPE declaration")
		}
		if !strings.Contains(output, "</html>") {
			t.Error("Missing closing html tag")
		}
	})

	t.Run("Name", func(t *testing.T) {
		if name := reporter.Name(); name != "html" {
			t.Errorf("Name mismatch: got %s, want html", name)
		}
	})
}

func TestHTMLReporter_MultipleFiles(t *testing.T) {
	cov := coverageWithLines(map[string]map[int]int{
		"auth.sql": {1: 2, 2: 0, 3: 1},
		"user.sql": {1: 5, 2: 3},
	})

	reporter := NewHTMLReporter()
	var buf bytes.Buffer
	if err := reporter.Format(cov, &buf); err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "auth.sql") {
		t.Error("Missing auth.sql in output")
	}
	if !strings.Contains(output, "user.sql") {
		t.Error("Missing user.sql in output")
	}
}

func TestHTMLReporter_EmptyCoverage(t *testing.T) {
	cov := coverageWithLines(map[string]map[int]int{})

	reporter := NewHTMLReporter()
	var buf bytes.Buffer
	if err := reporter.Format(cov, &buf); err != nil {
		t.Fatalf("Format failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "<!DOCTYPE html>") {
		t.Error("Missing DOCTYPE declaration")
	}
	if !strings.Contains(output, "Coverage Report") {
		t.Error("Missing report title")
	}
}

func TestHTMLReporter_CoveragePercentages(t *testing.T) {
	cov := coverageWithLines(map[string]map[int]int{
		"high_coverage.sql": {1: 10, 2: 5, 3: 1, 4: 0}, // 75% coverage (3/4)
		"low_coverage.sql":  {1: 0, 2: 0, 3: 1},        // 33.33% coverage (1/3)
	})

	reporter := NewHTMLReporter()
	output, err := reporter.FormatString(cov)
	if err != nil {
		t.Fatalf("FormatString failed: %v", err)
	}

	if !strings.Contains(output, "75.00%") {
		t.Error("Missing high_coverage.sql percentage (75%)")
	}
	if !strings.Contains(output, "33.33%") {
		t.Error("Missing low_coverage.sql percentage (33.33%)")
	}
}

func TestHTMLReporter_CSSPresent(t *testing.T) {
	cov := coverageWithLines(map[string]map[int]int{"test.sql": {1: 1}})

	reporter := NewHTMLReporter()
	output, err := reporter.FormatString(cov)
	if err != nil {
		t.Fatalf("FormatString failed: %v", err)
	}

	if !strings.Contains(output, "<style>") {
		t.Error("Missing <style> tag")
	}
	if !strings.Contains(output, "</style>") {
		t.Error("Missing </style> closing tag")
	}

	for _, class := range []string{".cov0", ".not-tracked"} {
		if !strings.Contains(output, class) {
			t.Errorf("Missing CSS class: %s", class)
		}
	}
}

func TestHTMLReporter_CoverageClasses(t *testing.T) {
	cov := coverageWithLines(map[string]map[int]int{
		"mixed.sql": {1: 1, 2: 3, 3: 0},
	})

	reporter := NewHTMLReporter()
	output, err := reporter.FormatString(cov)
	if err != nil {
		t.Fatalf("FormatString failed: %v", err)
	}

	if !strings.Contains(output, "cov0") {
		t.Error("Missing cov0 coverage class for uncovered lines")
	}
	if !strings.Contains(output, "cov1") && !strings.Contains(output, "cov3") {
		t.Error("Missing covered line classes (cov1, cov3, etc.)")
	}
}

func TestHTMLReporter_ValidHTML5(t *testing.T) {
	cov := coverageWithLines(map[string]map[int]int{"test.sql": {1: 1}})

	reporter := NewHTMLReporter()
	output, err := reporter.FormatString(cov)
	if err != nil {
		t.Fatalf("FormatString failed: %v", err)
	}

	if !strings.HasPrefix(strings.TrimSpace(output), "<!DOCTYPE html>") {
		t.Error("HTML5 DOCTYPE not at beginning of document")
	}
	if !strings.Contains(output, `charset="UTF-8"`) {
		t.Error("Missing UTF-8 charset declaration")
	}
}

func TestHTMLReporter_EscapeHTML(t *testing.T) {
	cov := coverageWithLines(map[string]map[int]int{
		"test<script>.sql": {1: 1},
		"file&name.sql":    {1: 1},
	})

	reporter := NewHTMLReporter()
	output, err := reporter.FormatString(cov)
	if err != nil {
		t.Fatalf("FormatString failed: %v", err)
	}

	if !strings.Contains(output, "&lt;script&gt;") {
		t.Error("HTML special characters not escaped properly (<)")
	}
	if !strings.Contains(output, "file&amp;name.sql") {
		t.Error("HTML special characters not escaped properly (&)")
	}
}

func TestHTMLReporter_Footer(t *testing.T) {
	cov := coverageWithLines(map[string]map[int]int{})

	reporter := NewHTMLReporter()
	output, err := reporter.FormatString(cov)
	if err != nil {
		t.Fatalf("FormatString failed: %v", err)
	}

	if !strings.Contains(output, "</body>") {
		t.Error("Missing closing body tag")
	}
	if !strings.Contains(output, "</html>") {
		t.Error("Missing closing html tag")
	}
}
