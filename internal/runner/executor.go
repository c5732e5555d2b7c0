package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/cybertec-postgresql/pgcov/internal/logger"
)

// WorkerEnvVar marks a re-exec'd process as a worker rather than the
// top-level CLI invocation. main() checks this before doing any normal
// flag parsing and, if set, hands off to RunWorker instead.
const WorkerEnvVar = "PGCOV_RUNNER_WORKER"

// testIDsEnvVar carries a worker's assigned partition as a comma-joined
// list of test ids, since a re-exec'd process starts with an empty heap
// and cannot inherit the parent's in-memory TestCase values directly.
const testIDsEnvVar = "PGCOV_WORKER_TESTS"

// Registry resolves a test id back into a TestCase inside the worker
// process. It stands in for the shared heap state a POSIX fork() would
// have given the child for free; the caller registers every TestCase it
// builds under the same id scheme both the parent and worker binary use.
type Registry interface {
	Lookup(id string) (TestCase, bool)
}

// Executor partitions a TestSuite across Workers re-exec'd worker
// processes, runs them concurrently, and forwards their outcomes into a
// single Sink.
type Executor struct {
	Registry Registry
	Workers  int
}

// NewExecutor builds an Executor. workers < 1 is treated as 1 (sequential
// execution in a single worker process).
func NewExecutor(registry Registry, workers int) *Executor {
	if workers < 1 {
		workers = 1
	}
	return &Executor{Registry: registry, Workers: workers}
}

// Run partitions suite, launches one worker per partition, and blocks
// until every worker has finished. Cancelling ctx terminates any workers
// still running.
func (e *Executor) Run(ctx context.Context, suite TestSuite, sink Sink) error {
	parts := Partition(&suite, e.Workers)
	if len(parts) == 0 {
		return nil
	}

	total := 0
	for _, p := range parts {
		total += len(p)
	}

	// shared is one Progress instance backing every worker's Forwarder, so
	// the "done_global/grand_total" figure in each composite progress
	// string is computed over the true cross-worker total rather than
	// each Forwarder's own, private view of it.
	shared := &Progress{
		WorkerProgress: make(map[int][]string),
		StartTime:      make(map[string]time.Time),
		ProgressInfo:   make(map[string]string),
	}
	fwds := make([]*Forwarder, len(parts))
	for i, part := range parts {
		fwds[i] = NewForwarder(sink, i, len(part), total, shared)
	}

	// abort stops every forwarder exactly once: the first worker to fail
	// causes in-flight outcomes from every other still-live worker to be
	// dropped rather than forwarded, the same way an unhandled exception
	// in one thread short-circuits reporting for its siblings upstream.
	// Workers themselves are not killed — they are left to finish and
	// clean up their own sandboxes.
	var abortOnce sync.Once
	abort := func() {
		abortOnce.Do(func() {
			for _, f := range fwds {
				f.Stop()
			}
		})
	}

	var wg sync.WaitGroup
	errs := make([]error, len(parts))
	for i, part := range parts {
		wg.Add(1)
		go func(i int, part Partition) {
			defer wg.Done()
			var err error
			if e.Workers <= 1 {
				// A single partition gains nothing from a re-exec'd
				// subprocess and, unlike the compiled cmd/pgcov binary,
				// a go test binary has no WorkerEnvVar hook to catch it
				// on the other side. Run it directly instead.
				err = e.runInProcess(part, fwds[i])
			} else {
				err = e.runWorker(ctx, i, part, fwds[i])
			}
			if err != nil {
				abort()
			}
			errs[i] = err
		}(i, part)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// runWorker launches one re-exec'd worker process for part, streams its
// outcomes through fwd, and waits for it to exit.
func (e *Executor) runWorker(ctx context.Context, workerNum int, part Partition, fwd *Forwarder) error {
	ids := make([]string, len(part))
	for i, tc := range part {
		ids[i] = tc.ID()
	}

	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}

	outPipeR, outPipeW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("worker %d: create pipe: %w", workerNum, err)
	}

	// stdout/stderr are captured per worker rather than wired to the
	// parent's os.Stdout/os.Stderr: concurrent workers writing straight
	// to the shared terminal would interleave mid-line and corrupt each
	// other's output.
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), WorkerEnvVar+"=1", testIDsEnvVar+"="+strings.Join(ids, ","))
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.ExtraFiles = []*os.File{outPipeW}

	if err := cmd.Start(); err != nil {
		outPipeR.Close()
		outPipeW.Close()
		return fmt.Errorf("worker %d: start: %w", workerNum, err)
	}
	outPipeW.Close()

	reader := newWireReader(outPipeR)
	var readErr error
	for {
		o, err := reader.next()
		if err != nil {
			if err != io.EOF {
				readErr = err
			}
			break
		}
		if ferr := fwd.Forward(o); ferr != nil {
			readErr = ferr
		}
	}
	outPipeR.Close()

	waitErr := cmd.Wait()
	if readErr != nil {
		return readErr
	}
	if waitErr != nil {
		logger.Errorf("worker %d exited with an error: %v\nstdout:\n%s\nstderr:\n%s",
			workerNum, waitErr, stdout.String(), stderr.String())
		return fmt.Errorf("worker %d: %w", workerNum, waitErr)
	}
	return nil
}

// directSink feeds an encoder's Outcomes straight into a Forwarder,
// standing in for wireWriter when a partition runs in the caller's own
// process rather than a re-exec'd worker.
type directSink struct {
	fwd *Forwarder
	err error
}

func (d *directSink) send(o Outcome) {
	if err := d.fwd.Forward(o); err != nil && d.err == nil {
		d.err = err
	}
}

// runInProcess runs part directly in the calling process, the same
// Sandbox/runOne sequence RunWorker uses in a re-exec'd worker, but
// feeding outcomes straight to fwd instead of through a wire pipe. Used
// whenever a partition doesn't need a separate OS process: the Workers<=1
// case, and any caller (such as a test binary) that can't stand in as
// its own re-exec target.
func (e *Executor) runInProcess(part Partition, fwd *Forwarder) error {
	ds := &directSink{fwd: fwd}
	enc := newEncoder(ds)

	sandbox, err := NewSandbox(os.Getpid())
	if sandbox != nil {
		// Even a sandbox that failed partway through may have created
		// its root directory; clean up whatever exists rather than
		// leaking it.
		defer sandbox.Cleanup()
	}
	if err != nil {
		reportSandboxFailure(ds, err)
		return fmt.Errorf("in-process sandbox setup failed: %w", err)
	}

	for _, tc := range part {
		sandbox.Rewrite(tc.ConfigPaths())
		runOne(tc, enc)
	}
	return ds.err
}

// RunWorker is the re-exec entry point. main() calls this before any
// normal CLI parsing when WorkerEnvVar is set. It reconstructs the
// worker's assigned TestCases from registry, relocates into a Sandbox if
// PGCOV_BUILDDIR is configured, runs each test, and streams outcomes back
// to the parent over fd 3 — the pipe handed down via cmd.ExtraFiles.
func RunWorker(registry Registry) int {
	idList := os.Getenv(testIDsEnvVar)
	var ids []string
	if idList != "" {
		ids = strings.Split(idList, ",")
	}

	pipe := os.NewFile(3, "pgcov-wire")
	if pipe == nil {
		logger.Error("worker started without a wire pipe on fd 3")
		return 1
	}
	defer pipe.Close()

	wire := newWireWriter(pipe)
	enc := newEncoder(wire)

	sandbox, err := NewSandbox(os.Getpid())
	if sandbox != nil {
		// As in runInProcess, a partially built sandbox still owns a
		// root directory on disk that must be torn down.
		defer sandbox.Cleanup()
	}
	if err != nil {
		reportSandboxFailure(wire, err)
		return 1
	}

	for _, id := range ids {
		tc, ok := registry.Lookup(id)
		if !ok {
			continue
		}
		sandbox.Rewrite(tc.ConfigPaths())
		runOne(tc, enc)
	}
	return 0
}

// reportSandboxFailure writes a single atomic error outcome straight to
// the wire, for a sandbox setup failure that happens before any test has
// run. There is no TestCase to attach the failure to yet, so it is sent
// as an out-of-test error frame — exactly the frame shape the parent's
// decoder already tolerates for class-setup errors, reused here rather
// than inventing a second "no test open" code path.
func reportSandboxFailure(w outcomeSink, err error) {
	w.send(Outcome{
		Kind:   OutcomeError,
		TestID: "sandbox-setup",
		Phase:  phaseEnd,
		Exception: &ExceptionInfo{
			TypeTag: "SandboxSetupError",
			Message: err.Error(),
		},
	})
}

// runOne runs a single TestCase, converting a panic into an error
// outcome so one broken test can't take the whole worker process down —
// the Go analogue of the upstream "broken-runner" ErrorHolder fallback.
func runOne(tc TestCase, sink TestCaseSink) {
	defer func() {
		if r := recover(); r != nil {
			sink.StartTest(tc)
			sink.AddError(tc, &ExceptionInfo{
				TypeTag: "panic",
				Message: fmt.Sprintf("%v", r),
			})
			sink.StopTest(tc)
		}
	}()
	tc.Run(sink)
}
