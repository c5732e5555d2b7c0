package runner

import "testing"

type fakeTestCase struct {
	id    string
	class string
}

func (f *fakeTestCase) ID() string                        { return f.id }
func (f *fakeTestCase) ClassKey() string                  { return f.class }
func (f *fakeTestCase) ExtraAnnotations() map[string]any   { return nil }
func (f *fakeTestCase) ConfigPaths() map[string]string     { return nil }
func (f *fakeTestCase) Run(sink TestCaseSink)              {}

func TestPartition_KeepsClassTogether(t *testing.T) {
	suite := TestSuite{
		&fakeTestCase{id: "a1", class: "a"},
		&fakeTestCase{id: "b1", class: "b"},
		&fakeTestCase{id: "a2", class: "a"},
		&fakeTestCase{id: "b2", class: "b"},
	}

	parts := Partition(&suite, 2)
	if len(parts) != 2 {
		t.Fatalf("expected 2 partitions, got %d", len(parts))
	}

	for _, p := range parts {
		seen := make(map[string]bool)
		for _, tc := range p {
			seen[tc.ClassKey()] = true
		}
		if len(seen) != 1 {
			t.Errorf("partition mixes classes: %v", seen)
		}
	}
}

func TestPartition_DropsEmptyPartitions(t *testing.T) {
	suite := TestSuite{
		&fakeTestCase{id: "a1", class: "a"},
	}

	parts := Partition(&suite, 5)
	if len(parts) != 1 {
		t.Fatalf("expected 1 non-empty partition, got %d", len(parts))
	}
	if len(parts[0]) != 1 {
		t.Errorf("expected partition of size 1, got %d", len(parts[0]))
	}
}

func TestPartition_DrainsSuite(t *testing.T) {
	suite := TestSuite{
		&fakeTestCase{id: "a1", class: "a"},
		&fakeTestCase{id: "b1", class: "b"},
	}

	Partition(&suite, 2)
	if len(suite) != 0 {
		t.Errorf("expected suite to be drained, got length %d", len(suite))
	}
}

func TestPartition_ZeroWorkersTreatedAsOne(t *testing.T) {
	suite := TestSuite{
		&fakeTestCase{id: "a1", class: "a"},
		&fakeTestCase{id: "b1", class: "b"},
	}

	parts := Partition(&suite, 0)
	if len(parts) != 1 {
		t.Fatalf("expected a single partition when n < 1, got %d", len(parts))
	}
	if len(parts[0]) != 2 {
		t.Errorf("expected all cases in the single partition, got %d", len(parts[0]))
	}
}

func TestPartition_RoundRobinByClass(t *testing.T) {
	suite := TestSuite{
		&fakeTestCase{id: "a1", class: "a"},
		&fakeTestCase{id: "b1", class: "b"},
		&fakeTestCase{id: "c1", class: "c"},
	}

	parts := Partition(&suite, 3)
	if len(parts) != 3 {
		t.Fatalf("expected 3 partitions, got %d", len(parts))
	}
	for _, p := range parts {
		if len(p) != 1 {
			t.Errorf("expected each partition to hold exactly one class, got %d", len(p))
		}
	}
}

func TestPartition_EmptySuite(t *testing.T) {
	suite := TestSuite{}
	parts := Partition(&suite, 4)
	if len(parts) != 0 {
		t.Errorf("expected no partitions for an empty suite, got %d", len(parts))
	}
}
