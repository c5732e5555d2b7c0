package runner

import "testing"

type recordedCall struct {
	method string
	testID string
	exc    *ExceptionInfo
	extra  map[string]any
	reason string
}

type fakeSink struct {
	calls []recordedCall
}

func (f *fakeSink) StartTest(testID string) {
	f.calls = append(f.calls, recordedCall{method: "StartTest", testID: testID})
}
func (f *fakeSink) AddSuccess(testID string, extra map[string]any) {
	f.calls = append(f.calls, recordedCall{method: "AddSuccess", testID: testID, extra: extra})
}
func (f *fakeSink) AddFailure(testID string, exc *ExceptionInfo, extra map[string]any) {
	f.calls = append(f.calls, recordedCall{method: "AddFailure", testID: testID, exc: exc, extra: extra})
}
func (f *fakeSink) AddError(testID string, exc *ExceptionInfo, extra map[string]any) {
	f.calls = append(f.calls, recordedCall{method: "AddError", testID: testID, exc: exc, extra: extra})
}
func (f *fakeSink) AddExpectedFailure(testID string, exc *ExceptionInfo, extra map[string]any) {
	f.calls = append(f.calls, recordedCall{method: "AddExpectedFailure", testID: testID, exc: exc, extra: extra})
}
func (f *fakeSink) AddUnexpectedSuccess(testID string, extra map[string]any) {
	f.calls = append(f.calls, recordedCall{method: "AddUnexpectedSuccess", testID: testID, extra: extra})
}
func (f *fakeSink) AddSkipped(testID string, reason string, extra map[string]any) {
	f.calls = append(f.calls, recordedCall{method: "AddSkipped", testID: testID, reason: reason, extra: extra})
}
func (f *fakeSink) AddSubTest(parentID, subTestID string, failure *ExceptionInfo) {
	f.calls = append(f.calls, recordedCall{method: "AddSubTest", testID: parentID + "/" + subTestID, exc: failure})
}
func (f *fakeSink) StopTest(testID string) {
	f.calls = append(f.calls, recordedCall{method: "StopTest", testID: testID})
}

func (f *fakeSink) methodsFor(testID string) []string {
	var out []string
	for _, c := range f.calls {
		if c.testID == testID {
			out = append(out, c.method)
		}
	}
	return out
}

func TestDecoder_StartStopBracket(t *testing.T) {
	sink := &fakeSink{}
	d := newDecoder(sink)

	if err := d.Dispatch(Outcome{Kind: OutcomeUnknown, TestID: "t1", Phase: phaseStart}); err != nil {
		t.Fatalf("dispatch start: %v", err)
	}
	if err := d.Dispatch(Outcome{Kind: OutcomeSuccess, TestID: "t1", Phase: phaseEnd}); err != nil {
		t.Fatalf("dispatch end: %v", err)
	}
	if err := d.Dispatch(Outcome{Kind: OutcomeUnknown, TestID: "t1", Phase: phaseStop}); err != nil {
		t.Fatalf("dispatch stop: %v", err)
	}

	got := sink.methodsFor("t1")
	want := []string{"StartTest", "AddSuccess", "StopTest"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestDecoder_OutOfTestErrorSynthesizesStart(t *testing.T) {
	sink := &fakeSink{}
	d := newDecoder(sink)

	err := d.Dispatch(Outcome{
		Kind:   OutcomeError,
		TestID: "classSetup",
		Phase:  phaseEnd,
		Exception: &ExceptionInfo{
			TypeTag: "SetupError",
			Message: "fixture failed",
		},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	got := sink.methodsFor("classSetup")
	if len(got) != 2 || got[0] != "StartTest" || got[1] != "AddError" {
		t.Errorf("expected synthesized StartTest followed by AddError, got %v", got)
	}
}

func TestDecoder_SubTestsExpandBeforeVerdict(t *testing.T) {
	sink := &fakeSink{}
	d := newDecoder(sink)

	_ = d.Dispatch(Outcome{Kind: OutcomeUnknown, TestID: "parent", Phase: phaseStart})
	err := d.Dispatch(Outcome{
		Kind:   OutcomeSuccess,
		TestID: "parent",
		Phase:  phaseEnd,
		SubTests: []SubTestOutcome{
			{SubTestID: "sub1"},
			{SubTestID: "sub2", Failure: &ExceptionInfo{Message: "boom"}},
		},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	got := sink.methodsFor("parent")
	want := []string{"StartTest", "AddSuccess"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}

	subCalls := 0
	for _, c := range sink.calls {
		if c.method == "AddSubTest" {
			subCalls++
		}
	}
	if subCalls != 2 {
		t.Errorf("expected 2 AddSubTest calls, got %d", subCalls)
	}
}

func TestDecoder_ForcedUnknownSuppressesVerdict(t *testing.T) {
	sink := &fakeSink{}
	d := newDecoder(sink)

	_ = d.Dispatch(Outcome{Kind: OutcomeUnknown, TestID: "parent", Phase: phaseStart})
	err := d.Dispatch(Outcome{
		Kind:          OutcomeSuccess,
		TestID:        "parent",
		Phase:         phaseEnd,
		ForcedUnknown: true,
		SubTests:      []SubTestOutcome{{SubTestID: "sub1"}},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	for _, c := range sink.calls {
		if c.method == "AddSuccess" {
			t.Error("ForcedUnknown outcome should not report a verdict")
		}
	}
}

func TestDecoder_UnknownPhaseErrors(t *testing.T) {
	sink := &fakeSink{}
	d := newDecoder(sink)

	err := d.Dispatch(Outcome{TestID: "t1", Phase: outcomePhase(99)})
	if err == nil {
		t.Error("expected an error for an unrecognized phase")
	}
}
