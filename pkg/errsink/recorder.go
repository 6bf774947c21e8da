package errsink

import "sync"

// Recorder keeps every report in memory. It is meant for tests and for
// embedders that surface shipper failures in their own UI.
type Recorder struct {
	mu      sync.Mutex
	reports []Report
}

// Report appends r.
func (rec *Recorder) Report(r Report) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.reports = append(rec.reports, r)
}

// Reports returns a copy of everything recorded so far.
func (rec *Recorder) Reports() []Report {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]Report, len(rec.reports))
	copy(out, rec.reports)
	return out
}

// Len returns the number of recorded reports.
func (rec *Recorder) Len() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.reports)
}
