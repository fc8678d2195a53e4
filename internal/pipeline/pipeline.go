package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/aircheck/internal/source"
	"github.com/MrWong99/aircheck/internal/stats"
	"github.com/MrWong99/aircheck/pkg/audio"
)

// Default timing for the duty cycle and the supervision loop.
const (
	DefaultBatchInterval  = 20 * time.Millisecond
	DefaultCheckpoint     = 3 * time.Second
	DefaultResponseWindow = 15 * time.Second
	DefaultPollInterval   = time.Second
	DefaultRestartPause   = time.Second
	DefaultSampleRate     = 24000
)

// Streamer opens the live byte stream for a station URL. *source.Decoder
// satisfies it.
type Streamer interface {
	Stream(ctx context.Context, url string) (<-chan []byte, error)
}

// Conn is the subset of the realtime connection the orchestrator drives.
// *realtime.Conn satisfies it.
type Conn interface {
	Append(frame []byte) error
	Commit() error
	CreateResponse() error
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Dialer establishes a realtime connection for one streaming cycle.
type Dialer interface {
	Connect(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the [Dialer] interface.
type DialerFunc func(ctx context.Context) (Conn, error)

// Connect calls f.
func (f DialerFunc) Connect(ctx context.Context) (Conn, error) { return f(ctx) }

// Config holds all dependencies and timing for a [Pipeline]. Selector,
// Catalog, Streamer, and Dialer are required; Stats is optional. Zero
// durations and rate fall back to the defaults above.
type Config struct {
	Selector *source.Selector
	Catalog  *source.Catalog
	Streamer Streamer
	Dialer   Dialer
	Stats    *stats.Pipeline

	SampleRate     int
	BatchInterval  time.Duration
	Checkpoint     time.Duration
	ResponseWindow time.Duration
	PollInterval   time.Duration
	RestartPause   time.Duration
}

// Pipeline supervises streaming cycles: wait for a station selection, run
// decoder → batcher → duty cycle → connection until the selection changes
// or something breaks, then start over. Failures never propagate out of
// [Pipeline.Run]; they are logged and answered with a restart after a
// pause.
type Pipeline struct {
	selector *source.Selector
	catalog  *source.Catalog
	streamer Streamer
	dialer   Dialer
	kpi      *stats.Pipeline

	cycle      *Cycle
	batchBytes int

	pollInterval time.Duration
	restartPause time.Duration
}

// New creates a Pipeline from its dependencies.
func New(cfg Config) *Pipeline {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = DefaultBatchInterval
	}
	if cfg.Checkpoint <= 0 {
		cfg.Checkpoint = DefaultCheckpoint
	}
	if cfg.ResponseWindow <= 0 {
		cfg.ResponseWindow = DefaultResponseWindow
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.RestartPause <= 0 {
		cfg.RestartPause = DefaultRestartPause
	}

	return &Pipeline{
		selector:     cfg.Selector,
		catalog:      cfg.Catalog,
		streamer:     cfg.Streamer,
		dialer:       cfg.Dialer,
		kpi:          cfg.Stats,
		cycle:        NewCycle(cfg.Checkpoint, cfg.ResponseWindow, cfg.SampleRate),
		batchBytes:   audio.BytesFor(cfg.BatchInterval, cfg.SampleRate),
		pollInterval: cfg.PollInterval,
		restartPause: cfg.RestartPause,
	}
}

// Run executes streaming cycles until ctx is cancelled. It only ever
// returns ctx.Err(); every failure inside a cycle is converted into a
// logged restart.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		id, ok := p.awaitSelection(ctx)
		if !ok {
			return ctx.Err()
		}

		err := p.streamCycle(ctx, id)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err == nil:
			// Clean abort after a station change or clear. Loop around
			// immediately; awaitSelection decides what happens next.
		default:
			slog.Error("streaming cycle failed, restarting", "station", id, "error", err)
			select {
			case <-time.After(p.restartPause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// awaitSelection polls the selector until a station is chosen or ctx is
// cancelled.
func (p *Pipeline) awaitSelection(ctx context.Context) (source.StationID, bool) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if id, ok := p.selector.Current(); ok {
			return id, true
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return "", false
		}
	}
}

// streamCycle runs one Streaming phase for the given station. A nil return
// means the selection changed or was cleared and the cycle ended cleanly;
// any error means the cycle broke and should be restarted after a pause.
func (p *Pipeline) streamCycle(ctx context.Context, id source.StationID) error {
	station, ok := p.catalog.ByID(id)
	if !ok {
		return fmt.Errorf("pipeline: station %q not in catalog", id)
	}

	streamCtx, cancel := context.WithCancel(ctx)

	chunks, err := p.streamer.Stream(streamCtx, station.URL)
	if err != nil {
		cancel()
		return fmt.Errorf("pipeline: open stream: %w", err)
	}
	frames := audio.BatchStream(chunks, p.batchBytes)
	defer func() {
		// Stop the decoder first so the frame channel closes, then drain
		// whatever the batcher still holds.
		cancel()
		audio.Drain(frames)
	}()

	conn, err := p.dialer.Connect(streamCtx)
	if err != nil {
		return fmt.Errorf("pipeline: connect: %w", err)
	}
	defer conn.Close()
	if p.kpi != nil {
		p.kpi.IncrReconnects()
	}

	p.cycle.Reset()
	slog.Info("streaming station", "station", station.ID, "name", station.Name)

	for {
		// Re-check the selection before every frame so a change or clear
		// aborts between frames, never mid-write.
		current, selected := p.selector.Current()
		if !selected || current != id {
			slog.Info("station selection changed, stopping stream", "station", id)
			return nil
		}

		select {
		case frame, open := <-frames:
			if !open {
				return errors.New("pipeline: audio stream ended")
			}
			if err := p.forward(conn, frame); err != nil {
				return err
			}
		case <-conn.Done():
			if err := conn.Err(); err != nil {
				return fmt.Errorf("pipeline: connection lost: %w", err)
			}
			return errors.New("pipeline: connection closed")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// forward pushes one frame to the connection and performs whatever the duty
// cycle demands for it.
func (p *Pipeline) forward(conn Conn, frame []byte) error {
	if err := conn.Append(frame); err != nil {
		return fmt.Errorf("pipeline: append: %w", err)
	}

	step := p.cycle.Advance(len(frame))
	if step.Commit {
		if err := conn.Commit(); err != nil {
			return fmt.Errorf("pipeline: commit: %w", err)
		}
	}
	if step.Respond {
		if err := conn.CreateResponse(); err != nil {
			return fmt.Errorf("pipeline: request response: %w", err)
		}
	}
	return nil
}
