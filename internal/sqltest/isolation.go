package sqltest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cybertec-postgresql/pgcov/internal/database"
)

// IsolationValidator tracks and validates the per-test temp-database
// isolation guarantee: every test gets a unique database, and every
// database is dropped once its test finishes.
type IsolationValidator struct {
	mu              sync.Mutex
	usedDatabases   map[string]time.Time
	activeDatabases map[string]bool
	cleanedUp       map[string]bool
}

// NewIsolationValidator creates a new isolation validator.
func NewIsolationValidator() *IsolationValidator {
	return &IsolationValidator{
		usedDatabases:   make(map[string]time.Time),
		activeDatabases: make(map[string]bool),
		cleanedUp:       make(map[string]bool),
	}
}

// TrackDatabase records that a database has been created for a test.
func (iv *IsolationValidator) TrackDatabase(dbName string, createdAt time.Time) error {
	iv.mu.Lock()
	defer iv.mu.Unlock()

	if existingTime, exists := iv.usedDatabases[dbName]; exists {
		return fmt.Errorf("database name collision detected: %s already created at %v", dbName, existingTime)
	}

	iv.usedDatabases[dbName] = createdAt
	iv.activeDatabases[dbName] = true
	return nil
}

// MarkCleaned marks a database as properly cleaned up.
func (iv *IsolationValidator) MarkCleaned(dbName string) {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	delete(iv.activeDatabases, dbName)
	iv.cleanedUp[dbName] = true
}

// ValidateUniqueness verifies at least one database was tracked.
func (iv *IsolationValidator) ValidateUniqueness() error {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	if len(iv.usedDatabases) == 0 {
		return fmt.Errorf("no databases were tracked")
	}
	return nil
}

// ValidateCleanup verifies that every tracked database was dropped.
func (iv *IsolationValidator) ValidateCleanup() error {
	iv.mu.Lock()
	defer iv.mu.Unlock()

	var activeDBs []string
	for dbName := range iv.activeDatabases {
		activeDBs = append(activeDBs, dbName)
	}
	if len(activeDBs) > 0 {
		return fmt.Errorf("databases not properly cleaned up: %v", activeDBs)
	}

	for dbName := range iv.usedDatabases {
		if !iv.cleanedUp[dbName] {
			return fmt.Errorf("database %s was not marked as cleaned up", dbName)
		}
	}
	return nil
}

// GetStats returns statistics about database usage.
func (iv *IsolationValidator) GetStats() IsolationStats {
	iv.mu.Lock()
	defer iv.mu.Unlock()

	names := make([]string, 0, len(iv.usedDatabases))
	for name := range iv.usedDatabases {
		names = append(names, name)
	}

	return IsolationStats{
		TotalDatabases:   len(iv.usedDatabases),
		ActiveDatabases:  len(iv.activeDatabases),
		CleanedDatabases: len(iv.cleanedUp),
		DatabaseNames:    names,
	}
}

// IsolationStats summarizes database usage across a run.
type IsolationStats struct {
	TotalDatabases   int
	ActiveDatabases  int
	CleanedDatabases int
	DatabaseNames    []string
}

// databaseExists checks whether a database exists in PostgreSQL.
func databaseExists(ctx context.Context, pool *database.Pool, dbName string) (bool, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	err = conn.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`, dbName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query database existence: %w", err)
	}
	return exists, nil
}

// DetectConnectionLeaks checks for open connections against a set of
// database names, returning the live-connection count for each one that
// still has at least one.
func DetectConnectionLeaks(ctx context.Context, pool *database.Pool, dbNames []string) (map[string]int, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	leaks := make(map[string]int)
	for _, dbName := range dbNames {
		query := `
			SELECT COUNT(*)
			FROM pg_stat_activity
			WHERE datname = $1 AND pid <> pg_backend_pid()
		`
		var count int
		if err := conn.QueryRow(ctx, query, dbName).Scan(&count); err != nil {
			return nil, fmt.Errorf("check connections for %s: %w", dbName, err)
		}
		if count > 0 {
			leaks[dbName] = count
		}
	}
	return leaks, nil
}

// VerifyStatelessExecution compares two TestResults for the same test id
// run in isolation from each other, ensuring no state leaked between
// them: identical outcome kind and identical coverage signal sets.
func VerifyStatelessExecution(r1, r2 TestResult) error {
	if r1.Kind != r2.Kind {
		return fmt.Errorf("outcome differs: %v vs %v", r1.Kind, r2.Kind)
	}

	if len(r1.CoverageSignals) != len(r2.CoverageSignals) {
		return fmt.Errorf("coverage signal count differs: %d vs %d", len(r1.CoverageSignals), len(r2.CoverageSignals))
	}

	set1 := make(map[string]bool, len(r1.CoverageSignals))
	for _, s := range r1.CoverageSignals {
		set1[s] = true
	}
	set2 := make(map[string]bool, len(r2.CoverageSignals))
	for _, s := range r2.CoverageSignals {
		set2[s] = true
	}
	for s := range set1 {
		if !set2[s] {
			return fmt.Errorf("signal %s present in first run but not second", s)
		}
	}
	for s := range set2 {
		if !set1[s] {
			return fmt.Errorf("signal %s present in second run but not first", s)
		}
	}
	return nil
}

// IsolationReport is a comprehensive post-run isolation audit.
type IsolationReport struct {
	TotalTests          int
	UniqueDatabases     int
	ProperlyCleanedUp   int
	ConnectionLeaks     map[string]int
	IsolationViolations []string
}

// GenerateIsolationReport audits a completed run's database isolation by
// re-querying PostgreSQL for leftover databases and connections. dbNames
// is the set of temp database names the run created (recovered from each
// TestResult's coverage annotations is not possible, so callers that want
// this report must track database names separately via
// IsolationValidator.TrackDatabase as each SQLTestCase runs).
func GenerateIsolationReport(ctx context.Context, pool *database.Pool, validator *IsolationValidator, dbNames []string) (*IsolationReport, error) {
	report := &IsolationReport{
		TotalTests:          len(dbNames),
		IsolationViolations: []string{},
		ConnectionLeaks:     make(map[string]int),
	}

	for _, dbName := range dbNames {
		exists, err := databaseExists(ctx, pool, dbName)
		if err != nil {
			report.IsolationViolations = append(report.IsolationViolations,
				fmt.Sprintf("failed to check database %s: %v", dbName, err))
			continue
		}
		if !exists {
			validator.MarkCleaned(dbName)
		}
	}

	stats := validator.GetStats()
	report.UniqueDatabases = stats.TotalDatabases
	report.ProperlyCleanedUp = stats.CleanedDatabases

	leaks, err := DetectConnectionLeaks(ctx, pool, dbNames)
	if err != nil {
		report.IsolationViolations = append(report.IsolationViolations,
			fmt.Sprintf("failed to detect connection leaks: %v", err))
	} else {
		report.ConnectionLeaks = leaks
	}

	if err := validator.ValidateCleanup(); err != nil {
		report.IsolationViolations = append(report.IsolationViolations, err.Error())
	}

	return report, nil
}
