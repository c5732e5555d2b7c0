package runner

import (
	"fmt"
	"sync"
	"time"
)

// Forwarder serializes outcomes from every worker's decode goroutine into
// a single Sink, while bookkeeping per-worker progress. It mirrors
// BBThreadsafeForwardingResult's two critical sections: first a locked
// bookkeeping pass that updates StartTime/WorkerProgress/ProgressInfo,
// then the (also locked) forward to the underlying Sink. Keeping these as
// two separate critical sections under the same mutex, rather than one
// combined one, matches the upstream semaphore-acquire/release pairing
// the progress-tracking patch adds around each add* call.
type Forwarder struct {
	mu sync.Mutex

	sink    Sink
	dec     *decoder
	stopped bool

	workerNum      int
	totalInWorker  int
	totalTests     int
	workerProgress map[int][]string
	startTime      map[string]time.Time
	progressInfo   map[string]string
}

// NewForwarder builds a Forwarder for one worker's stream. workerNum
// identifies the worker for progress reporting; totalInWorker and
// totalTests size the "x/y" progress string the same way the upstream
// patch computes "threadnum: done/totalinprocess done/totaltests".
func NewForwarder(sink Sink, workerNum, totalInWorker, totalTests int, shared *Progress) *Forwarder {
	f := &Forwarder{
		sink:          sink,
		dec:           newDecoder(sink),
		workerNum:     workerNum,
		totalInWorker: totalInWorker,
		totalTests:    totalTests,
	}
	if shared != nil {
		f.workerProgress = shared.WorkerProgress
		f.startTime = shared.StartTime
		f.progressInfo = shared.ProgressInfo
	} else {
		f.workerProgress = make(map[int][]string)
		f.startTime = make(map[string]time.Time)
		f.progressInfo = make(map[string]string)
	}
	return f
}

// Forward applies one decoded Outcome, updating progress bookkeeping
// first and then forwarding to the Sink, both under the Forwarder's
// mutex so no two workers' calls into the same Sink ever interleave.
// Once Stop has been called, Forward drops the outcome instead of
// delivering it to the Sink, matching the upstream "stop" semantics:
// in-flight outcomes from a worker are discarded rather than risking a
// half-formed report after the parent has decided to abort.
func (f *Forwarder) Forward(o Outcome) error {
	f.mu.Lock()
	switch o.Phase {
	case phaseStart:
		f.startTime[o.TestID] = time.Now()
	case phaseEnd:
		f.bookkeep(o.TestID)
	}
	stopped := f.stopped
	f.mu.Unlock()

	if stopped {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dec.Dispatch(o)
}

// Stop marks the Forwarder as aborted: every outcome still in flight from
// its worker is dropped rather than forwarded to the Sink. It is called
// on every live Forwarder when the parent run loop hits an unrecoverable
// error, so a crash mid-run can't leave the Sink mid-write from one
// worker while others are still being cleaned up.
func (f *Forwarder) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

// bookkeep records a test's completion timing and progress, matching
// _add_result_with_semaphore's "if self._test_start" block: it fires once
// per test, when its terminal outcome arrives, using the start time
// recorded by the matching phaseStart frame to compute elapsed duration.
// Caller must hold f.mu.
func (f *Forwarder) bookkeep(testID string) {
	start, ok := f.startTime[testID]
	if !ok {
		start = time.Now()
	}
	f.workerProgress[f.workerNum] = append(f.workerProgress[f.workerNum], testID)

	total := 0
	for _, done := range f.workerProgress {
		total += len(done)
	}
	elapsed := time.Since(start).Seconds()
	f.progressInfo[testID] = fmt.Sprintf("%d: %d/%d %d/%d (%.2fs) (%s)",
		f.workerNum, len(f.workerProgress[f.workerNum]), f.totalInWorker, total, f.totalTests, elapsed, testID)
}

// Snapshot returns a copy of the current progress state, safe to read
// without further locking.
func (f *Forwarder) Snapshot() Progress {
	f.mu.Lock()
	defer f.mu.Unlock()

	wp := make(map[int][]string, len(f.workerProgress))
	for k, v := range f.workerProgress {
		cp := make([]string, len(v))
		copy(cp, v)
		wp[k] = cp
	}
	st := make(map[string]time.Time, len(f.startTime))
	for k, v := range f.startTime {
		st[k] = v
	}
	pi := make(map[string]string, len(f.progressInfo))
	for k, v := range f.progressInfo {
		pi[k] = v
	}
	return Progress{
		WorkerProgress: wp,
		TotalInWorker:  map[int]int{f.workerNum: f.totalInWorker},
		GrandTotal:     f.totalTests,
		StartTime:      st,
		ProgressInfo:   pi,
	}
}
