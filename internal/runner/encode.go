package runner

// outcomeSink is whatever an encoder hands finished Outcomes to. A
// wireWriter implements it for a re-exec'd worker talking back over the
// pipe; a directSink implements it for a partition run in-process, with
// no subprocess or gob framing in between.
type outcomeSink interface {
	send(o Outcome)
}

// encoder is the child-side TestCaseSink: it buffers sub-test outcomes per
// parent test case and, on StopTest, decides whether the parent's final
// verdict needs to be forced to "unknown" because sub-tests were reported
// but the test itself never asserted one way or the other. It then hands
// off a fully-formed Outcome to an outcomeSink.
type encoder struct {
	w outcomeSink

	// subtests accumulates per-test-id sub-test results until StopTest
	// flushes them, mirroring the Python encoder's list-of-pairs buffer.
	subtests map[string][]SubTestOutcome
	// reported tracks which test ids already had a terminal Add* call so
	// stopTest's forced_unknown synthesis doesn't double-report.
	reported map[string]bool
}

func newEncoder(w outcomeSink) *encoder {
	return &encoder{
		w:        w,
		subtests: make(map[string][]SubTestOutcome),
		reported: make(map[string]bool),
	}
}

func (e *encoder) StartTest(tc TestCase) {
	e.w.send(Outcome{Kind: OutcomeUnknown, TestID: tc.ID(), Phase: phaseStart})
}

func (e *encoder) AddSuccess(tc TestCase) {
	e.finish(tc, OutcomeSuccess, nil, "")
}

func (e *encoder) AddFailure(tc TestCase, exc *ExceptionInfo) {
	e.finish(tc, OutcomeFailure, exc, "")
}

func (e *encoder) AddError(tc TestCase, exc *ExceptionInfo) {
	e.finish(tc, OutcomeError, exc, "")
}

func (e *encoder) AddExpectedFailure(tc TestCase, exc *ExceptionInfo) {
	e.finish(tc, OutcomeExpectedFailure, exc, "")
}

func (e *encoder) AddUnexpectedSuccess(tc TestCase) {
	e.finish(tc, OutcomeUnexpectedSuccess, nil, "")
}

func (e *encoder) AddSkipped(tc TestCase, reason string) {
	e.finish(tc, OutcomeSkipped, nil, reason)
}

func (e *encoder) AddSubTest(parent TestCase, subTestID string, failure *ExceptionInfo) {
	id := parent.ID()
	e.subtests[id] = append(e.subtests[id], SubTestOutcome{SubTestID: subTestID, Failure: failure})
}

func (e *encoder) StopTest(tc TestCase) {
	id := tc.ID()
	subs := e.subtests[id]
	delete(e.subtests, id)

	// If sub-tests were reported but the parent never reached a terminal
	// Add* call, dummy-send a forced_unknown success so the decoder can
	// still recover the sub-test detail without claiming a verdict the
	// test itself never rendered.
	if len(subs) > 0 && !e.reported[id] {
		o := Outcome{
			Kind:          OutcomeSuccess,
			TestID:        id,
			Phase:         phaseEnd,
			SubTests:      subs,
			ForcedUnknown: true,
		}
		e.attachExtra(tc, &o)
		e.w.send(o)
	}
	delete(e.reported, id)
	e.w.send(Outcome{Kind: OutcomeUnknown, TestID: id, Phase: phaseStop})
}

func (e *encoder) finish(tc TestCase, kind OutcomeKind, exc *ExceptionInfo, reason string) {
	id := tc.ID()
	e.reported[id] = true

	o := Outcome{
		Kind:           kind,
		TestID:         id,
		Phase:          phaseEnd,
		Exception:      exc,
		SkippedReason:  reason,
		SubTests:       e.subtests[id],
	}
	delete(e.subtests, id)
	e.attachExtra(tc, &o)
	e.w.send(o)
}

func (e *encoder) attachExtra(tc TestCase, o *Outcome) {
	if extra := tc.ExtraAnnotations(); len(extra) > 0 {
		o.Extra = extra
	}
}

// outcomePhase distinguishes the start/end/stop markers a TestCaseSink
// emits for a single test id, so the wire carries the same three-event
// shape testtools' start/stop bracket does around each add* call.
type outcomePhase int

const (
	phaseStart outcomePhase = iota
	phaseEnd
	phaseStop
)

// Outcome is the wire-level record the encoder produces and the decoder
// consumes: one test's start marker, terminal verdict (with any attached
// sub-tests and extra annotations), or stop marker.
type Outcome struct {
	Kind          OutcomeKind
	TestID        string
	Phase         outcomePhase
	Exception     *ExceptionInfo
	SkippedReason string
	SubTests      []SubTestOutcome
	Extra         map[string]any
	ForcedUnknown bool
}
