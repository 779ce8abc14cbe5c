package engine

import (
	"fmt"
	"io"
	"time"
)

// Stats accumulates timing for the engine's main operations. It only
// accumulates — no thresholds, no alerting — display and export are the
// caller's concern via WriteTo.
type Stats struct {
	ExecuteTime      time.Duration
	SplitTime        time.Duration
	SubsumptionTime  time.Duration
	WPTime           time.Duration
	SolverTime       time.Duration

	SubsumptionChecks int
	SubsumptionHits   int
}

func (s *Stats) timeIt(d *time.Duration) func() {
	start := time.Now()
	return func() { *d += time.Since(start) }
}

// WriteTo renders the accumulated stats as plain text.
func (s *Stats) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w,
		"execute=%s split=%s subsumption=%s (checks=%d hits=%d) wp=%s solver=%s\n",
		s.ExecuteTime, s.SplitTime, s.SubsumptionTime, s.SubsumptionChecks, s.SubsumptionHits, s.WPTime, s.SolverTime)
	return int64(n), err
}
