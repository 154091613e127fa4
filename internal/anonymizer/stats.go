package anonymizer

import "sort"

// Stats accumulates replacement counts for a single anonymization run.
// A Stats value is owned by one run and is not safe for concurrent use.
type Stats struct {
	TotalReplacements int            `json:"total_replacements"`
	ByType            map[string]int `json:"by_type"`
}

// NewStats returns zeroed stats.
func NewStats() *Stats {
	return &Stats{ByType: make(map[string]int)}
}

// Add records n replacements for category. Non-positive counts are ignored
// so TotalReplacements always equals the sum of ByType.
func (s *Stats) Add(category string, n int) {
	if n <= 0 {
		return
	}
	if s.ByType == nil {
		s.ByType = make(map[string]int)
	}
	s.ByType[category] += n
	s.TotalReplacements += n
}

// Reset zeroes the counters.
func (s *Stats) Reset() {
	s.TotalReplacements = 0
	s.ByType = make(map[string]int)
}

// Snapshot returns an independent copy.
func (s *Stats) Snapshot() Stats {
	out := Stats{TotalReplacements: s.TotalReplacements, ByType: make(map[string]int, len(s.ByType))}
	for k, v := range s.ByType {
		out.ByType[k] = v
	}
	return out
}

// Categories returns the recorded categories in sorted order.
func (s *Stats) Categories() []string {
	keys := make([]string, 0, len(s.ByType))
	for k := range s.ByType {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
