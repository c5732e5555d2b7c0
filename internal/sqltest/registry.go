package sqltest

import "github.com/cybertec-postgresql/pgcov/internal/runner"

// Registry maps test ids back to the SQLTestCase values the parent
// process built, so a re-exec'd worker (which started with its own,
// otherwise-empty Registry populated the same way) can look up exactly
// the test cases it was assigned.
type Registry struct {
	cases map[string]runner.TestCase
}

// NewRegistry builds a Registry from a slice of TestCases, keyed by ID.
func NewRegistry(cases []*SQLTestCase) *Registry {
	r := &Registry{cases: make(map[string]runner.TestCase, len(cases))}
	for _, tc := range cases {
		r.cases[tc.ID()] = tc
	}
	return r
}

// Lookup implements runner.Registry.
func (r *Registry) Lookup(id string) (runner.TestCase, bool) {
	tc, ok := r.cases[id]
	return tc, ok
}
