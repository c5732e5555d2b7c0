package sqltest

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/cybertec-postgresql/pgcov/internal/database"
	"github.com/cybertec-postgresql/pgcov/internal/discovery"
	"github.com/cybertec-postgresql/pgcov/internal/instrument"
	"github.com/cybertec-postgresql/pgcov/internal/parser"
	"github.com/cybertec-postgresql/pgcov/internal/runner"
)

// BuildSuite discovers every *_test.sql file under searchPath, parses and
// instruments its co-located sources, and returns a runner.TestSuite
// together with the Registry a worker needs to reconstruct those same
// cases after a re-exec.
func BuildSuite(searchPath string, pool *database.Pool, timeout time.Duration, isolation *IsolationValidator) (runner.TestSuite, *Registry, error) {
	testFiles, err := discovery.DiscoverTests(searchPath)
	if err != nil {
		return nil, nil, fmt.Errorf("discover tests: %w", err)
	}

	sourceFiles, err := discovery.DiscoverCoLocatedSources(testFiles)
	if err != nil {
		return nil, nil, fmt.Errorf("discover sources: %w", err)
	}

	var parsedSources []*parser.ParsedSQL
	for i := range sourceFiles {
		parsed, err := parser.Parse(&sourceFiles[i])
		if err != nil {
			return nil, nil, fmt.Errorf("parse %s: %w", sourceFiles[i].RelativePath, err)
		}
		parsedSources = append(parsedSources, parsed)
	}

	instrumentedSources, err := instrument.GenerateCoverageInstruments(parsedSources)
	if err != nil {
		return nil, nil, fmt.Errorf("instrument sources: %w", err)
	}

	var cases []*SQLTestCase
	var suite runner.TestSuite
	for i := range testFiles {
		testDir := filepath.Dir(testFiles[i].Path)
		tc := NewSQLTestCase(&testFiles[i], sourcesInDir(instrumentedSources, testDir), pool, timeout, isolation)
		cases = append(cases, tc)
		suite = append(suite, tc)
	}

	return suite, NewRegistry(cases), nil
}

func sourcesInDir(sources []*instrument.InstrumentedSQL, dir string) []*instrument.InstrumentedSQL {
	var out []*instrument.InstrumentedSQL
	for _, src := range sources {
		if filepath.Dir(src.Original.File.Path) == dir {
			out = append(out, src)
		}
	}
	return out
}
