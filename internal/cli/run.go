package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/cybertec-postgresql/pgcov/internal/coverage"
	"github.com/cybertec-postgresql/pgcov/internal/database"
	"github.com/cybertec-postgresql/pgcov/internal/logger"
	"github.com/cybertec-postgresql/pgcov/internal/runner"
	"github.com/cybertec-postgresql/pgcov/internal/sqltest"
)

// Run executes the test runner workflow: discover/parse/instrument SQL
// test files, partition and run them through the parallel executor, and
// report pass/fail counts and coverage percentage.
func Run(ctx context.Context, config *Config, searchPath string) (int, error) {
	startTime := time.Now()
	logger.SetVerbose(config.Verbose)

	logger.Debugf("discovering tests in %s", searchPath)

	pool, err := database.NewPool(ctx, config)
	if err != nil {
		logger.Errorf("database connection failed: %v", err)
		return 1, fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	logger.Debugf("connected to PostgreSQL at %s:%d", config.PGHost, config.PGPort)

	isolation := sqltest.NewIsolationValidator()
	suite, registry, err := sqltest.BuildSuite(searchPath, pool, config.Timeout, isolation)
	if err != nil {
		logger.Errorf("failed to build test suite: %v", err)
		return 1, fmt.Errorf("failed to build test suite: %w", err)
	}

	if len(suite) == 0 {
		fmt.Println("No test files found (*_test.sql)")
		return 0, nil
	}

	logger.Debugf("found %d test file(s)", len(suite))

	sink := sqltest.NewResultSink(config.Verbose)
	executor := runner.NewExecutor(registry, config.Parallelism)

	logger.Infof("executing tests (workers: %d)", config.Parallelism)
	if err := executor.Run(ctx, suite, sink); err != nil {
		logger.Errorf("test execution failed: %v", err)
		return 1, fmt.Errorf("test execution failed: %w", err)
	}

	collector := coverage.NewCollector()
	if err := collector.CollectFromResults(sink.Results()); err != nil {
		return 1, fmt.Errorf("coverage collection failed: %w", err)
	}

	store := coverage.NewStore(config.CoverageFile)
	if err := store.Save(collector.Coverage()); err != nil {
		return 1, fmt.Errorf("failed to save coverage: %w", err)
	}

	summary := sink.Summary()
	coveragePercent := collector.TotalCoveragePercent()

	fmt.Printf("\n")
	fmt.Printf("Tests:    %d passed, %d failed, %d total\n",
		summary.PassedTests, summary.FailedTests, summary.TotalTests)
	fmt.Printf("Coverage: %.2f%%\n", coveragePercent)
	fmt.Printf("Time:     %v\n", time.Since(startTime).Round(time.Millisecond))
	fmt.Printf("\n")
	fmt.Printf("Coverage data written to %s\n", config.CoverageFile)

	return summary.ExitCode(), nil
}
