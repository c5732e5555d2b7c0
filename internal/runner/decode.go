package runner

import "fmt"

// decoder turns Outcome frames read off a worker's wire into Sink calls,
// expanding any buffered sub-test results and suppressing the terminal
// verdict when the worker marked it ForcedUnknown (a success added purely
// to carry sub-test detail, with no real assertion behind it).
//
// It also implements the "out-of-test error" patch: a worker can emit an
// OutcomeError frame for a test id that was never bracketed by a
// phaseStart, which happens when setup shared by a whole class fails
// before any individual test begins. Rather than dropping it, the
// decoder synthesizes the missing StartTest ahead of the verdict, so the
// Sink sees start-add for that test; no StopTest is synthesized.
type decoder struct {
	sink Sink
	// open tracks test ids that have seen a phaseStart but not yet a
	// matching phaseStop, so out-of-test frames can be detected.
	open map[string]bool
}

func newDecoder(sink Sink) *decoder {
	return &decoder{sink: sink, open: make(map[string]bool)}
}

// Dispatch applies one decoded Outcome to the underlying Sink.
func (d *decoder) Dispatch(o Outcome) error {
	switch o.Phase {
	case phaseStart:
		d.open[o.TestID] = true
		d.sink.StartTest(o.TestID)
		return nil
	case phaseStop:
		delete(d.open, o.TestID)
		d.sink.StopTest(o.TestID)
		return nil
	case phaseEnd:
		return d.dispatchEnd(o)
	default:
		return fmt.Errorf("decode: unknown phase %d for test %q", o.Phase, o.TestID)
	}
}

func (d *decoder) dispatchEnd(o Outcome) error {
	if !d.open[o.TestID] {
		// out-of-test error: synthesize the bracket the worker skipped.
		d.sink.StartTest(o.TestID)
		d.open[o.TestID] = true
	}

	for _, st := range o.SubTests {
		d.sink.AddSubTest(o.TestID, st.SubTestID, st.Failure)
	}

	if o.ForcedUnknown {
		// The sub-tests above are the payload; the parent verdict itself
		// carries no information and must not be reported as a pass.
		return nil
	}

	switch o.Kind {
	case OutcomeSuccess:
		d.sink.AddSuccess(o.TestID, o.Extra)
	case OutcomeFailure:
		d.sink.AddFailure(o.TestID, o.Exception, o.Extra)
	case OutcomeError:
		d.sink.AddError(o.TestID, o.Exception, o.Extra)
	case OutcomeExpectedFailure:
		d.sink.AddExpectedFailure(o.TestID, o.Exception, o.Extra)
	case OutcomeUnexpectedSuccess:
		d.sink.AddUnexpectedSuccess(o.TestID, o.Extra)
	case OutcomeSkipped:
		d.sink.AddSkipped(o.TestID, o.SkippedReason, o.Extra)
	default:
		return fmt.Errorf("decode: unhandled outcome kind %v for test %q", o.Kind, o.TestID)
	}
	return nil
}
