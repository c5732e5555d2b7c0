package sqltest

import (
	"sync"
	"time"

	"github.com/cybertec-postgresql/pgcov/internal/logger"
	"github.com/cybertec-postgresql/pgcov/internal/runner"
)

// TestResult is one test id's final verdict, captured by ResultSink for
// reporting once the whole suite has finished.
type TestResult struct {
	TestID          string
	Kind            runner.OutcomeKind
	Exception       *runner.ExceptionInfo
	CoverageSignals []string
	Duration        time.Duration
}

// ResultSink implements runner.Sink: it is the CLI's single consumer of
// decoded outcomes, accumulating a TestResult per test id and printing
// verbose progress as results arrive. Every method may be invoked from
// any worker's forwarding goroutine, but never concurrently with another
// call on this sink — the executor's Forwarder guarantees that.
type ResultSink struct {
	Verbose bool

	mu      sync.Mutex
	started map[string]time.Time
	results []TestResult
}

// NewResultSink creates an empty ResultSink.
func NewResultSink(verbose bool) *ResultSink {
	return &ResultSink{Verbose: verbose, started: make(map[string]time.Time)}
}

func (s *ResultSink) StartTest(testID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started[testID] = time.Now()
	if s.Verbose {
		logger.Debugf("[RUN]  %s", testID)
	}
}

func (s *ResultSink) AddSuccess(testID string, extra map[string]any) {
	s.record(testID, runner.OutcomeSuccess, nil, extra)
}

func (s *ResultSink) AddFailure(testID string, exc *runner.ExceptionInfo, extra map[string]any) {
	s.record(testID, runner.OutcomeFailure, exc, extra)
}

func (s *ResultSink) AddError(testID string, exc *runner.ExceptionInfo, extra map[string]any) {
	s.record(testID, runner.OutcomeError, exc, extra)
}

func (s *ResultSink) AddExpectedFailure(testID string, exc *runner.ExceptionInfo, extra map[string]any) {
	s.record(testID, runner.OutcomeExpectedFailure, exc, extra)
}

func (s *ResultSink) AddUnexpectedSuccess(testID string, extra map[string]any) {
	s.record(testID, runner.OutcomeUnexpectedSuccess, nil, extra)
}

func (s *ResultSink) AddSkipped(testID string, reason string, extra map[string]any) {
	s.record(testID, runner.OutcomeSkipped, &runner.ExceptionInfo{Message: reason}, extra)
}

func (s *ResultSink) AddSubTest(parentID, subTestID string, failure *runner.ExceptionInfo) {
	if s.Verbose && failure != nil {
		logger.Debugf("[SUB]  %s/%s: %s", parentID, subTestID, failure.Message)
	}
}

func (s *ResultSink) StopTest(testID string) {
	if s.Verbose {
		logger.Debugf("[DONE] %s", testID)
	}
}

func (s *ResultSink) record(testID string, kind runner.OutcomeKind, exc *runner.ExceptionInfo, extra map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dur time.Duration
	if start, ok := s.started[testID]; ok {
		dur = time.Since(start)
	}

	var signals []string
	if extra != nil {
		if raw, ok := extra["coverage_signals"]; ok {
			if ss, ok := raw.([]string); ok {
				signals = ss
			}
		}
	}

	s.results = append(s.results, TestResult{
		TestID:          testID,
		Kind:            kind,
		Exception:       exc,
		CoverageSignals: signals,
		Duration:        dur,
	})

	if s.Verbose {
		status := "PASS"
		switch kind {
		case runner.OutcomeFailure:
			status = "FAIL"
		case runner.OutcomeError:
			status = "ERROR"
		case runner.OutcomeSkipped:
			status = "SKIP"
		}
		logger.Debugf("[%s] %s (%s)", status, testID, dur.Round(time.Millisecond))
	}
}

// Results returns a copy of every recorded TestResult.
func (s *ResultSink) Results() []TestResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TestResult, len(s.results))
	copy(out, s.results)
	return out
}

// Summary reduces the accumulated results into pass/fail counts.
func (s *ResultSink) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := Summary{TotalTests: len(s.results)}
	var total time.Duration
	for _, r := range s.results {
		total += r.Duration
		switch r.Kind {
		case runner.OutcomeSuccess, runner.OutcomeExpectedFailure:
			summary.PassedTests++
		default:
			summary.FailedTests++
		}
	}
	summary.TotalDuration = total
	return summary
}

// Summary mirrors the executor's pass/fail tally, reported by the CLI
// after a run completes.
type Summary struct {
	TotalTests    int
	PassedTests   int
	FailedTests   int
	TotalDuration time.Duration
}

// AllPassed reports whether every test in the run succeeded.
func (s Summary) AllPassed() bool { return s.FailedTests == 0 }

// ExitCode is the process exit code that corresponds to this summary.
func (s Summary) ExitCode() int {
	if s.AllPassed() {
		return 0
	}
	return 1
}
