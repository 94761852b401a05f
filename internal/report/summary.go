package report

import "math"

// Summary aggregates journal records.
type Summary struct {
	Total           int            `json:"total"`
	Succeeded       int            `json:"succeeded"`
	ChildFailures   int            `json:"child_failures"`
	WrapperFailures int            `json:"wrapper_failures"`
	ByCode          map[int]int    `json:"by_code"`
	ByReason        map[string]int `json:"by_reason"`

	MeanDuration float64 `json:"mean_duration_seconds"`
	MaxDuration  float64 `json:"max_duration_seconds"`

	StdoutLines int64 `json:"stdout_lines"`
	StderrLines int64 `json:"stderr_lines"`

	// SkippedLines counts journal lines that could not be parsed.
	SkippedLines   int             `json:"skipped_lines"`
	RecentFailures []FailureSample `json:"recent_failures"`
}

// Summarize folds results (oldest first) into a Summary.
func Summarize(results []*Result, skipped int) *Summary {
	s := &Summary{
		ByCode:       make(map[int]int),
		ByReason:     make(map[string]int),
		SkippedLines: skipped,
	}
	failures := NewFailureLog(DefaultFailureLogSize)

	var total float64
	for _, r := range results {
		s.Total++
		s.ByCode[r.Code]++
		s.ByReason[r.Reason]++
		s.StdoutLines += r.StdoutLines
		s.StderrLines += r.StderrLines

		switch r.Outcome() {
		case OutcomeSuccess:
			s.Succeeded++
		case OutcomeChildFailure:
			s.ChildFailures++
		case OutcomeWrapperFailure:
			s.WrapperFailures++
		}

		total += r.Duration
		s.MaxDuration = math.Max(s.MaxDuration, r.Duration)
		failures.Record(r)
	}

	if s.Total > 0 {
		s.MeanDuration = total / float64(s.Total)
	}
	s.RecentFailures = failures.Recent(0)
	return s
}

// Failed is the number of invocations that did not succeed.
func (s *Summary) Failed() int {
	return s.ChildFailures + s.WrapperFailures
}
