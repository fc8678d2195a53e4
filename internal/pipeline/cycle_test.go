package pipeline_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/aircheck/internal/pipeline"
)

// The canonical tuning: 24kHz 16-bit mono is 48000 bytes per second of
// audio, so 3s checkpoints fire every 144000 bytes and the 15s response
// window at 720000 bytes.
func newTestCycle() *pipeline.Cycle {
	return pipeline.NewCycle(3*time.Second, 15*time.Second, 24000)
}

func TestCycle_CommitCadence(t *testing.T) {
	t.Parallel()

	c := newTestCycle()

	const frame = 48000 // one second of audio per frame
	var commits, responds []int
	for i := 1; i <= 15; i++ {
		step := c.Advance(frame)
		if step.Commit {
			commits = append(commits, i)
		}
		if step.Respond {
			responds = append(responds, i)
		}
	}

	// Four intermediate commits, then the fifth coincides with the
	// response trigger.
	wantCommits := []int{3, 6, 9, 12, 15}
	if !slices.Equal(commits, wantCommits) {
		t.Errorf("commits at frames %v; want %v", commits, wantCommits)
	}
	if !slices.Equal(responds, []int{15}) {
		t.Errorf("responses at frames %v; want [15]", responds)
	}
}

func TestCycle_RespondAlwaysComesWithCommit(t *testing.T) {
	t.Parallel()

	c := newTestCycle()
	step := c.Advance(720000)
	if !step.Commit || !step.Respond {
		t.Errorf("step for a full window = %+v; want commit and respond", step)
	}
}

func TestCycle_StateResetsOnTrigger(t *testing.T) {
	t.Parallel()

	c := newTestCycle()

	run := func() (commits, responds int) {
		for range 15 {
			step := c.Advance(48000)
			if step.Commit {
				commits++
			}
			if step.Respond {
				responds++
			}
		}
		return commits, responds
	}

	c1, r1 := run()
	c2, r2 := run()
	if c1 != 5 || r1 != 1 {
		t.Errorf("first window: %d commits, %d responses; want 5 and 1", c1, r1)
	}
	if c2 != c1 || r2 != r1 {
		t.Errorf("second window: %d commits, %d responses; want same as first (%d, %d)", c2, r2, c1, r1)
	}
}

func TestCycle_OversizeFrameTriggersImmediately(t *testing.T) {
	t.Parallel()

	c := newTestCycle()

	// A single frame larger than the whole response window fires the
	// trigger at once; the checkpoint due at the same frame is subsumed.
	step := c.Advance(800000)
	if !step.Commit || !step.Respond {
		t.Fatalf("step = %+v; want commit and respond", step)
	}

	// No residue: the next checkpoint needs a full stride again.
	if step := c.Advance(143999); step.Commit || step.Respond {
		t.Errorf("step just below the checkpoint stride = %+v; want none", step)
	}
	if step := c.Advance(1); !step.Commit || step.Respond {
		t.Errorf("step at the checkpoint stride = %+v; want commit only", step)
	}
}

func TestCycle_Reset(t *testing.T) {
	t.Parallel()

	c := newTestCycle()

	if step := c.Advance(100000); step.Commit || step.Respond {
		t.Fatalf("step below all thresholds = %+v; want none", step)
	}
	c.Reset()

	// Without the reset this second frame would cross the 144000-byte
	// checkpoint stride.
	if step := c.Advance(100000); step.Commit || step.Respond {
		t.Errorf("step after Reset = %+v; want none", step)
	}
}

func TestCycle_NoActionsBelowThresholds(t *testing.T) {
	t.Parallel()

	c := newTestCycle()
	for range 100 {
		if step := c.Advance(960); step.Commit || step.Respond {
			t.Fatalf("unexpected step %+v before any threshold", step)
		}
	}
}
