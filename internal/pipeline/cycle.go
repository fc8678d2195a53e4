// Package pipeline drives audio from the selected radio station into the
// realtime service. The [Cycle] decides, purely from byte counts, when the
// forwarded audio warrants a commit or a response request; the [Pipeline]
// supervises the whole chain of decoder, batcher, controller, and
// connection, restarting it on failure and tearing it down cleanly on a
// station change.
package pipeline

import (
	"time"

	"github.com/MrWong99/aircheck/pkg/audio"
)

// Step names the actions that must follow a forwarded frame. Respond is
// never set without Commit.
type Step struct {
	Commit  bool
	Respond bool
}

// Cycle is the duty-cycle controller. It accounts for every forwarded byte
// and fires a commit each time a checkpoint's worth of audio has passed
// since the previous commit, and a commit plus response request once a full
// response window has accumulated.
//
// Not safe for concurrent use. The orchestrator goroutine is the single
// writer.
type Cycle struct {
	checkpointBytes int
	targetBytes     int

	accumulated     int
	sinceCheckpoint int
}

// NewCycle derives the byte thresholds from the checkpoint and response
// windows over the audio timeline. The checkpoint window must be strictly
// smaller than the response window for intermediate commits to ever fire;
// config validation enforces that.
func NewCycle(checkpoint, responseWindow time.Duration, sampleRate int) *Cycle {
	return &Cycle{
		checkpointBytes: audio.BytesFor(checkpoint, sampleRate),
		targetBytes:     audio.BytesFor(responseWindow, sampleRate),
	}
}

// Advance accounts for one forwarded frame of n bytes and reports the
// actions it triggers. Reaching the response window resets both counters,
// superseding any checkpoint due at the same frame.
func (c *Cycle) Advance(n int) Step {
	c.accumulated += n
	c.sinceCheckpoint += n

	if c.accumulated >= c.targetBytes {
		c.accumulated = 0
		c.sinceCheckpoint = 0
		return Step{Commit: true, Respond: true}
	}
	if c.sinceCheckpoint >= c.checkpointBytes {
		c.sinceCheckpoint = 0
		return Step{Commit: true}
	}
	return Step{}
}

// Reset zeroes both counters, as if no audio had been forwarded. Called
// when a streaming cycle (re)starts so a fresh connection never inherits
// progress from a previous one.
func (c *Cycle) Reset() {
	c.accumulated = 0
	c.sinceCheckpoint = 0
}
