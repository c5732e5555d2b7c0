package runner

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestForwarder_ForwardsToSink(t *testing.T) {
	sink := &fakeSink{}
	fwd := NewForwarder(sink, 0, 1, 1, nil)

	if err := fwd.Forward(Outcome{Kind: OutcomeUnknown, TestID: "t1", Phase: phaseStart}); err != nil {
		t.Fatalf("forward start: %v", err)
	}
	if err := fwd.Forward(Outcome{Kind: OutcomeSuccess, TestID: "t1", Phase: phaseEnd}); err != nil {
		t.Fatalf("forward end: %v", err)
	}

	got := sink.methodsFor("t1")
	if len(got) != 2 || got[0] != "StartTest" || got[1] != "AddSuccess" {
		t.Errorf("unexpected calls: %v", got)
	}
}

func TestForwarder_TracksProgressOnTerminalOutcome(t *testing.T) {
	sink := &fakeSink{}
	fwd := NewForwarder(sink, 2, 3, 10, nil)

	_ = fwd.Forward(Outcome{Kind: OutcomeUnknown, TestID: "t1", Phase: phaseStart})

	snap := fwd.Snapshot()
	if len(snap.WorkerProgress[2]) != 0 {
		t.Errorf("expected no progress recorded until the terminal outcome, got %v", snap.WorkerProgress[2])
	}

	_ = fwd.Forward(Outcome{Kind: OutcomeSuccess, TestID: "t1", Phase: phaseEnd})

	snap = fwd.Snapshot()
	if len(snap.WorkerProgress[2]) != 1 || snap.WorkerProgress[2][0] != "t1" {
		t.Errorf("expected worker 2's progress to record t1, got %v", snap.WorkerProgress[2])
	}
	if snap.GrandTotal != 10 {
		t.Errorf("expected grand total 10, got %d", snap.GrandTotal)
	}
	info, ok := snap.ProgressInfo["t1"]
	if !ok {
		t.Fatal("expected a composite progress string for t1")
	}
	if !strings.Contains(info, "2: 1/3 1/10 (") || !strings.HasSuffix(info, "s) (t1)") {
		t.Errorf("unexpected progress string format: %q", info)
	}
}

func TestForwarder_SharedProgressTracksAcrossWorkers(t *testing.T) {
	sink := &fakeSink{}
	shared := &Progress{
		WorkerProgress: make(map[int][]string),
		StartTime:      make(map[string]time.Time),
		ProgressInfo:   make(map[string]string),
	}
	fwd0 := NewForwarder(sink, 0, 2, 4, shared)
	fwd1 := NewForwarder(sink, 1, 2, 4, shared)

	_ = fwd0.Forward(Outcome{Kind: OutcomeUnknown, TestID: "a1", Phase: phaseStart})
	_ = fwd0.Forward(Outcome{Kind: OutcomeSuccess, TestID: "a1", Phase: phaseEnd})

	_ = fwd1.Forward(Outcome{Kind: OutcomeUnknown, TestID: "b1", Phase: phaseStart})
	_ = fwd1.Forward(Outcome{Kind: OutcomeSuccess, TestID: "b1", Phase: phaseEnd})

	snap := fwd1.Snapshot()
	if len(snap.WorkerProgress[0]) != 1 || len(snap.WorkerProgress[1]) != 1 {
		t.Fatalf("expected both workers' progress visible from either Forwarder, got %v", snap.WorkerProgress)
	}

	info, ok := snap.ProgressInfo["b1"]
	if !ok {
		t.Fatal("expected a composite progress string for b1")
	}
	// b1 is worker 1's first completed test (1/2) but the second across
	// both workers, so the cross-worker done/total must read 2/4, not 1/4
	// (which is what a private, unshared Progress would have produced).
	if !strings.Contains(info, "1: 1/2 2/4 (") {
		t.Errorf("expected cross-worker global progress 2/4, got %q", info)
	}
}

func TestForwarder_StopDropsInFlightOutcomes(t *testing.T) {
	sink := &fakeSink{}
	fwd := NewForwarder(sink, 0, 1, 1, nil)

	_ = fwd.Forward(Outcome{Kind: OutcomeUnknown, TestID: "t1", Phase: phaseStart})
	fwd.Stop()
	_ = fwd.Forward(Outcome{Kind: OutcomeSuccess, TestID: "t1", Phase: phaseEnd})

	if got := sink.methodsFor("t1"); len(got) != 1 || got[0] != "StartTest" {
		t.Errorf("expected the post-Stop outcome to be dropped, got %v", got)
	}
}

func TestForwarder_ConcurrentForwardsSerialize(t *testing.T) {
	sink := &fakeSink{}
	fwd := NewForwarder(sink, 0, 1, 1, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "t"
			_ = fwd.Forward(Outcome{Kind: OutcomeUnknown, TestID: id, Phase: phaseStart})
			_ = fwd.Forward(Outcome{Kind: OutcomeSuccess, TestID: id, Phase: phaseEnd})
		}(i)
	}
	wg.Wait()

	if len(sink.calls) != 100 {
		t.Errorf("expected 100 recorded calls (50 starts + 50 successes), got %d", len(sink.calls))
	}
}
