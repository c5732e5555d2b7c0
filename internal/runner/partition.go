package runner

// Partition deals suite into at most n partitions, round-robin by class,
// so that no class is ever split across two workers. Empty partitions
// (n greater than the number of distinct classes) are dropped from the
// result. Partition takes ownership of suite's backing array: on return,
// *suite is truncated to length 0, since every case has been moved into
// one of the returned partitions.
func Partition(suite *TestSuite, n int) []Partition {
	if n < 1 {
		n = 1
	}

	byClass := make(map[string][]TestCase)
	var order []string
	for _, tc := range *suite {
		key := tc.ClassKey()
		if _, seen := byClass[key]; !seen {
			order = append(order, key)
		}
		byClass[key] = append(byClass[key], tc)
	}

	parts := make([]Partition, n)
	for i, key := range order {
		bucket := i % n
		parts[bucket] = append(parts[bucket], byClass[key]...)
	}

	*suite = (*suite)[:0]

	out := parts[:0]
	for _, p := range parts {
		if len(p) > 0 {
			out = append(out, p)
		}
	}
	return out
}
