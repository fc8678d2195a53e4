// Package stats collects key performance indicators of the streaming
// pipeline: how fast the model starts answering, how long full responses
// take, and how much audio has been pushed through. Snapshots back the
// /stats endpoint and the periodic KPI log line.
package stats

import (
	"math"
	"slices"
	"sync"
	"time"
)

// Pipeline accumulates latency samples and counters for one process
// lifetime. Latencies are kept in bounded ring buffers from which
// percentiles are computed on demand.
//
// Thread-safe for concurrent use.
type Pipeline struct {
	mu sync.Mutex

	firstDelta   latencyBuffer
	fullResponse latencyBuffer

	frames       int64
	bytes        int64
	commits      int64
	responses    int64
	deltas       int64
	remoteErrors int64
	reconnects   int64
}

// NewPipeline creates a Pipeline retaining at most windowSize latency
// samples per measured span.
func NewPipeline(windowSize int) *Pipeline {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &Pipeline{
		firstDelta:   newLatencyBuffer(windowSize),
		fullResponse: newLatencyBuffer(windowSize),
	}
}

// RecordFirstDelta records the time from requesting a response to its first
// text fragment arriving.
func (ps *Pipeline) RecordFirstDelta(d time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.firstDelta.add(d)
}

// RecordFullResponse records the time from requesting a response to its
// completion event.
func (ps *Pipeline) RecordFullResponse(d time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.fullResponse.add(d)
}

// AddFrame counts one forwarded audio frame of n bytes.
func (ps *Pipeline) AddFrame(n int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.frames++
	ps.bytes += int64(n)
}

// IncrCommits counts one input buffer commit.
func (ps *Pipeline) IncrCommits() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.commits++
}

// IncrResponses counts one requested response.
func (ps *Pipeline) IncrResponses() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.responses++
}

// IncrDeltas counts one received text delta.
func (ps *Pipeline) IncrDeltas() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.deltas++
}

// IncrRemoteErrors counts one error event reported by the remote service.
func (ps *Pipeline) IncrRemoteErrors() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.remoteErrors++
}

// IncrReconnects counts one connection (re)establishment.
func (ps *Pipeline) IncrReconnects() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.reconnects++
}

// LatencyPercentiles holds p50 and p95 values for one measured span, in
// milliseconds for direct display.
type LatencyPercentiles struct {
	P50Millis float64 `json:"p50_ms"`
	P95Millis float64 `json:"p95_ms"`
}

// Snapshot is a point-in-time view of all pipeline statistics, shaped for
// the /stats endpoint.
type Snapshot struct {
	FirstDelta   LatencyPercentiles `json:"first_delta"`
	FullResponse LatencyPercentiles `json:"full_response"`
	Frames       int64              `json:"frames_forwarded"`
	Bytes        int64              `json:"bytes_forwarded"`
	Commits      int64              `json:"commits"`
	Responses    int64              `json:"responses_requested"`
	Deltas       int64              `json:"deltas"`
	RemoteErrors int64              `json:"remote_errors"`
	Reconnects   int64              `json:"reconnects"`
}

// Snapshot returns a point-in-time view of all pipeline statistics.
func (ps *Pipeline) Snapshot() Snapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	return Snapshot{
		FirstDelta:   ps.firstDelta.percentiles(),
		FullResponse: ps.fullResponse.percentiles(),
		Frames:       ps.frames,
		Bytes:        ps.bytes,
		Commits:      ps.commits,
		Responses:    ps.responses,
		Deltas:       ps.deltas,
		RemoteErrors: ps.remoteErrors,
		Reconnects:   ps.reconnects,
	}
}

// latencyBuffer is a bounded ring buffer of duration samples.
type latencyBuffer struct {
	data []time.Duration
	size int
	pos  int
	full bool
}

func newLatencyBuffer(size int) latencyBuffer {
	return latencyBuffer{
		data: make([]time.Duration, size),
		size: size,
	}
}

func (lb *latencyBuffer) add(d time.Duration) {
	lb.data[lb.pos] = d
	lb.pos++
	if lb.pos >= lb.size {
		lb.pos = 0
		lb.full = true
	}
}

func (lb *latencyBuffer) percentiles() LatencyPercentiles {
	n := lb.pos
	if lb.full {
		n = lb.size
	}
	if n == 0 {
		return LatencyPercentiles{}
	}

	sorted := make([]time.Duration, n)
	copy(sorted, lb.data[:n])
	slices.Sort(sorted)

	return LatencyPercentiles{
		P50Millis: millis(percentile(sorted, 0.50)),
		P95Millis: millis(percentile(sorted, 0.95)),
	}
}

// percentile returns the value at the given percentile (0.0-1.0) from a
// sorted slice of durations using nearest-rank.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
