package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cybertec-postgresql/pgcov/internal/coverage"
	"github.com/cybertec-postgresql/pgcov/internal/report"
)

func main() {
	fc := coverage.NewFileCoverage("testdata/html_demo/sample.sql")
	hits := map[int]int{
		2: 1, 3: 1, 4: 1, 5: 1, 6: 1, 7: 1, // CREATE TABLE
		10: 5, 11: 5, 12: 5, // INSERT INTO (executed 5 times)
		15: 3, // SELECT * (executed 3 times)
		18: 2, // UPDATE users (executed 2 times)
		21: 1, 22: 1, 23: 1, // DO block / BEGIN / IF EXISTS
		24: 0, 25: 0, // RAISE NOTICE / ELSE branch (not executed)
		26: 1, 27: 1, 28: 1, // INSERT admin / END IF / END block
	}
	for line, hitCount := range hits {
		fc.AddLine(line, hitCount)
	}

	cov := &coverage.Coverage{
		Version:   "1.0",
		Timestamp: time.Now(),
		Files: map[string]*coverage.FileCoverage{
			fc.Path: fc,
		},
	}

	reporter := report.NewHTMLReporter()
	file, err := os.Create("testdata/html_demo/report.html")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating report file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	if err := reporter.Format(cov, file); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("HTML report generated: testdata/html_demo/report.html")
	fmt.Printf("  Total coverage: %.2f%%\n", cov.TotalLineCoveragePercent())
}
