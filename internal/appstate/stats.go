package appstate

import "sync/atomic"

// ServingStats counts server and command activity.
// All counters use atomic operations.
type ServingStats struct {
	served   atomic.Int64
	notFound atomic.Int64
	rejected atomic.Int64
	bytesOut atomic.Int64
	listed   atomic.Int64
	written  atomic.Int64
}

// NewServingStats creates a zeroed counter set.
func NewServingStats() *ServingStats {
	return &ServingStats{}
}

// AddServed records one successfully served file of n bytes.
func (s *ServingStats) AddServed(n int64) {
	s.served.Add(1)
	s.bytesOut.Add(n)
}

// AddNotFound records a request for a missing or unreadable file.
func (s *ServingStats) AddNotFound() {
	s.notFound.Add(1)
}

// AddRejected records a request or write that escaped the root.
func (s *ServingStats) AddRejected() {
	s.rejected.Add(1)
}

// AddListed records one enumeration.
func (s *ServingStats) AddListed() {
	s.listed.Add(1)
}

// AddWritten records n caption files written.
func (s *ServingStats) AddWritten(n int64) {
	s.written.Add(n)
}

// StatsSnapshot is a copy of the counters.
type StatsSnapshot struct {
	Served   int64 `json:"served"`
	NotFound int64 `json:"not_found"`
	Rejected int64 `json:"rejected"`
	BytesOut int64 `json:"bytes_out"`
	Listed   int64 `json:"listed"`
	Written  int64 `json:"written"`
}

// Snapshot returns the current counter values.
func (s *ServingStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Served:   s.served.Load(),
		NotFound: s.notFound.Load(),
		Rejected: s.rejected.Load(),
		BytesOut: s.bytesOut.Load(),
		Listed:   s.listed.Load(),
		Written:  s.written.Load(),
	}
}
