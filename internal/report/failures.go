package report

import "sync"

// FailureSample is the short form of a failed invocation kept for debugging.
type FailureSample struct {
	ID        string  `json:"id"`
	Outcome   string  `json:"outcome"`
	Reason    string  `json:"reason"`
	Code      int     `json:"code"`
	Duration  float64 `json:"duration_seconds"`
	Error     string  `json:"error,omitempty"`
	StartTime string  `json:"start_time"`
}

// FailureLog keeps the last N failures in a ring buffer.
type FailureLog struct {
	samples []FailureSample
	maxSize int
	mu      sync.RWMutex
}

// DefaultFailureLogSize is the number of failures a Summary keeps.
const DefaultFailureLogSize = 50

// NewFailureLog creates a failure log with fixed size.
func NewFailureLog(maxSize int) *FailureLog {
	if maxSize <= 0 {
		maxSize = DefaultFailureLogSize
	}
	return &FailureLog{
		samples: make([]FailureSample, 0, maxSize),
		maxSize: maxSize,
	}
}

// Record adds r if it failed. Successful results are ignored.
func (f *FailureLog) Record(r *Result) {
	if !r.Failed() {
		return
	}

	sample := FailureSample{
		ID:        r.ID,
		Outcome:   r.Outcome(),
		Reason:    r.Reason,
		Code:      r.Code,
		Duration:  r.Duration,
		Error:     r.Error,
		StartTime: r.StartTime.Format("2006-01-02T15:04:05Z07:00"),
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// full: drop oldest
	if len(f.samples) >= f.maxSize {
		f.samples = f.samples[1:]
	}
	f.samples = append(f.samples, sample)
}

// Recent returns up to n failures, newest first. n <= 0 returns all.
func (f *FailureLog) Recent(n int) []FailureSample {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if n <= 0 || n > len(f.samples) {
		n = len(f.samples)
	}

	out := make([]FailureSample, n)
	for i := 0; i < n; i++ {
		out[i] = f.samples[len(f.samples)-1-i]
	}
	return out
}

// Count returns how many failures are held.
func (f *FailureLog) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.samples)
}
