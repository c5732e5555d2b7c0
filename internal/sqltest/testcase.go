// Package sqltest adapts pgcov's SQL coverage workflow (temp-database
// creation, instrumented-source loading, NOTIFY-based signal collection)
// into runner.TestCase, so the generic parallel executor can schedule and
// isolate SQL test files the same way it would any other kind of test.
package sqltest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cybertec-postgresql/pgcov/internal/database"
	"github.com/cybertec-postgresql/pgcov/internal/discovery"
	"github.com/cybertec-postgresql/pgcov/internal/instrument"
	"github.com/cybertec-postgresql/pgcov/internal/runner"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLTestCase is a single *_test.sql file paired with the co-located
// instrumented source it exercises. It implements runner.TestCase: Run
// drives the per-test workflow (temp DB, LISTEN, load sources, execute
// test, collect signals) and reports through a runner.TestCaseSink
// instead of returning a *TestRun directly.
type SQLTestCase struct {
	File      *discovery.DiscoveredFile
	Sources   []*instrument.InstrumentedSQL
	Pool      *database.Pool
	Timeout   time.Duration
	Isolation *IsolationValidator // optional; tracked when non-nil

	configPaths map[string]string
	extra       map[string]any
}

// NewSQLTestCase builds a SQLTestCase for file, scoped to the sources
// co-located with it (same directory).
func NewSQLTestCase(file *discovery.DiscoveredFile, sources []*instrument.InstrumentedSQL, pool *database.Pool, timeout time.Duration, isolation *IsolationValidator) *SQLTestCase {
	return &SQLTestCase{
		File:        file,
		Sources:     sources,
		Pool:        pool,
		Timeout:     timeout,
		Isolation:   isolation,
		configPaths: map[string]string{"test_file": file.Path},
	}
}

// ID satisfies runner.TestCase. Test ids are relative paths, stable
// across both the parent process's partitioning pass and a worker's
// Registry lookup.
func (tc *SQLTestCase) ID() string { return tc.File.RelativePath }

// ClassKey groups every test file in the same directory together, since
// they typically share fixture sources; the partitioner keeps them on one
// worker rather than splitting them across processes.
func (tc *SQLTestCase) ClassKey() string { return filepath.Dir(tc.File.RelativePath) }

// ExtraAnnotations returns the coverage-signal payload collected by the
// most recent Run call, for the encoder to attach to the outcome's Extra
// field.
func (tc *SQLTestCase) ExtraAnnotations() map[string]any { return tc.extra }

// ConfigPaths exposes the test file's own path for sandbox rewriting; SQL
// tests carry no other filesystem configuration.
func (tc *SQLTestCase) ConfigPaths() map[string]string { return tc.configPaths }

// Run implements the per-test workflow: create a temp database, connect,
// LISTEN for coverage signals, load instrumented sources, execute the
// test file's SQL, and collect whatever signals arrived. The outcome is
// reported through sink rather than returned, so Run can be invoked from
// inside a worker process that communicates only over the wire protocol.
func (tc *SQLTestCase) Run(sink runner.TestCaseSink) {
	sink.StartTest(tc)
	defer sink.StopTest(tc)

	ctx, cancel := context.WithTimeout(context.Background(), tc.Timeout)
	defer cancel()

	signals, err := tc.execute(ctx)
	if err != nil {
		sink.AddError(tc, &runner.ExceptionInfo{
			TypeTag: "sqltest.ExecutionError",
			Message: err.Error(),
		})
		return
	}

	tc.extra = map[string]any{"coverage_signals": signals}
	sink.AddSuccess(tc)
}

// execute runs the seven-step workflow and returns the signal ids
// collected along the way (both the implicit DDL/DML ones and anything
// that arrived over LISTEN).
func (tc *SQLTestCase) execute(ctx context.Context) ([]string, error) {
	tempDB, err := database.CreateTempDatabase(ctx, tc.Pool)
	if err != nil {
		return nil, fmt.Errorf("create temp database: %w", err)
	}
	if tc.Isolation != nil {
		if err := tc.Isolation.TrackDatabase(tempDB.Name, tempDB.CreatedAt); err != nil {
			return nil, fmt.Errorf("isolation violation: %w", err)
		}
	}
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = database.DestroyTempDatabase(cleanupCtx, tc.Pool, tempDB)
		if tc.Isolation != nil {
			tc.Isolation.MarkCleaned(tempDB.Name)
		}
	}()

	tempPool, err := pgxpool.New(ctx, tempDB.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("connect to temp database: %w", err)
	}
	defer tempPool.Close()

	listener, err := database.NewListener(ctx, tempDB.ConnectionString, "pgcov")
	if err != nil {
		return nil, fmt.Errorf("start listener: %w", err)
	}
	defer listener.Close(ctx)

	var signalIDs []string

	conn, err := tempPool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	for _, source := range tc.Sources {
		if _, err := conn.Exec(ctx, source.InstrumentedText); err != nil {
			conn.Release()
			return nil, fmt.Errorf("load source %s: %w", source.Original.File.RelativePath, err)
		}
		for _, loc := range source.Locations {
			if loc.ImplicitCoverage {
				signalIDs = append(signalIDs, loc.SignalID)
			}
		}
	}
	conn.Release()

	testContent, err := os.ReadFile(tc.File.Path)
	if err != nil {
		return nil, fmt.Errorf("read test file: %w", err)
	}

	conn, err = tempPool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for test: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, string(testContent)); err != nil {
		return nil, fmt.Errorf("test execution failed: %w", err)
	}

	signals, err := listener.CollectSignals(ctx, 100*time.Millisecond)
	if err != nil && err != context.DeadlineExceeded && err != context.Canceled {
		return nil, fmt.Errorf("collect signals: %w", err)
	}
	for _, s := range signals {
		signalIDs = append(signalIDs, s.SignalID)
	}

	return signalIDs, nil
}
