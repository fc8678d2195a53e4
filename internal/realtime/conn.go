package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/aircheck/internal/broadcast"
	"github.com/MrWong99/aircheck/internal/observe"
	"github.com/MrWong99/aircheck/internal/stats"
	"github.com/coder/websocket"
)

// ErrConnClosed is returned by outbound actions once the connection has been
// closed.
var ErrConnClosed = errors.New("realtime: connection closed")

// flushTimeout bounds how long Close waits for queued writes to reach the
// socket before tearing the connection down anyway.
const flushTimeout = 5 * time.Second

// Publisher receives the messages the read loop extracts from inbound
// events. *broadcast.Broadcaster satisfies it.
type Publisher interface {
	Publish(msg broadcast.Message)
}

// Conn is one live connection to the realtime service. Outbound actions are
// serialized through a bounded single-consumer queue so the audio pipeline
// never contends on socket I/O; a concurrent read loop turns inbound events
// into broadcast messages.
//
// Conn is safe for concurrent use. All outbound actions preserve their call
// order on the wire.
type Conn struct {
	ws      *websocket.Conn
	pub     Publisher
	kpi     *stats.Pipeline
	metrics *observe.Metrics

	writeCh   chan []byte
	done      chan struct{} // closed by Close; stops intake of new actions
	writeDone chan struct{} // closed when the write loop exits
	readDone  chan struct{} // closed when the read loop exits

	closeOnce sync.Once

	mu  sync.Mutex
	err error

	// Response timing, keyed by response id once the first delta arrives.
	timingMu        sync.Mutex
	lastRequestedAt time.Time
	inflight        map[string]time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func newConn(ws *websocket.Conn, pub Publisher, kpi *stats.Pipeline, metrics *observe.Metrics, queueSize int) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		ws:        ws,
		pub:       pub,
		kpi:       kpi,
		metrics:   metrics,
		writeCh:   make(chan []byte, queueSize),
		done:      make(chan struct{}),
		writeDone: make(chan struct{}),
		readDone:  make(chan struct{}),
		inflight:  make(map[string]time.Time),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// start launches the read and write loops. The session configuration must
// already be on the wire.
func (c *Conn) start() {
	go c.writeLoop()
	go c.readLoop()
}

// ── Outbound actions ───────────────────────────────────────────────────────────

// Append queues one PCM frame for ingestion.
func (c *Conn) Append(frame []byte) error {
	if err := c.enqueue(appendAudioMessage(frame)); err != nil {
		return err
	}
	if c.kpi != nil {
		c.kpi.AddFrame(len(frame))
	}
	c.metrics.AddAudio(c.ctx, len(frame))
	return nil
}

// Commit queues a checkpoint, flushing the service's input buffer without
// requesting inference.
func (c *Conn) Commit() error {
	if err := c.enqueue(commitMessage); err != nil {
		return err
	}
	if c.kpi != nil {
		c.kpi.IncrCommits()
	}
	c.metrics.Commits.Add(c.ctx, 1)
	return nil
}

// CreateResponse queues an inference trigger for everything committed since
// the previous trigger.
func (c *Conn) CreateResponse() error {
	c.timingMu.Lock()
	c.lastRequestedAt = time.Now()
	c.timingMu.Unlock()

	if err := c.enqueue(responseCreateMsg); err != nil {
		return err
	}
	if c.kpi != nil {
		c.kpi.IncrResponses()
	}
	return nil
}

// enqueue hands msg to the write loop. It blocks when the queue is full,
// applying backpressure to the producer, and fails once Close has been
// called.
func (c *Conn) enqueue(msg []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.writeCh <- msg:
		return nil
	case <-c.done:
		return ErrConnClosed
	}
}

// ── Loops ──────────────────────────────────────────────────────────────────────

// writeLoop is the sole socket writer. After Close it drains whatever is
// still queued, then exits. A write error cancels the connection context so
// the read loop unblocks promptly.
func (c *Conn) writeLoop() {
	defer close(c.writeDone)

	write := func(msg []byte) bool {
		if err := c.ws.Write(c.ctx, websocket.MessageText, msg); err != nil {
			if c.ctx.Err() == nil {
				c.setErr(fmt.Errorf("realtime: write: %w", err))
				slog.Error("realtime write failed", "error", err)
				c.cancel()
			}
			return false
		}
		return true
	}

	for {
		select {
		case msg := <-c.writeCh:
			if !write(msg) {
				return
			}
		case <-c.done:
			for {
				select {
				case msg := <-c.writeCh:
					if !write(msg) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// readLoop is the sole socket reader. Each inbound payload is decoded into a
// [ServerEvent] and dispatched; payloads that fail to decode are logged and
// skipped, they never stop the loop.
func (c *Conn) readLoop() {
	defer close(c.readDone)

	for {
		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			c.noteReadExit(err)
			return
		}

		var evt ServerEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			slog.Warn("discarding unparseable realtime event", "error", err)
			continue
		}

		c.handleEvent(&evt)
	}
}

// noteReadExit classifies the read loop's terminal error. Normal closure and
// local shutdown are unremarkable; anything else is surfaced via Err.
func (c *Conn) noteReadExit(err error) {
	switch {
	case c.ctx.Err() != nil:
		// Local shutdown or a write error that already cancelled us.
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
		slog.Info("realtime connection closed by service")
	default:
		c.setErr(fmt.Errorf("realtime: read: %w", err))
		slog.Error("realtime read failed", "error", err)
	}
}

// handleEvent dispatches one inbound event. Unrecognized types are ignored so
// new service events never break the loop.
func (c *Conn) handleEvent(evt *ServerEvent) {
	switch evt.Type {
	case "response.output_text.delta":
		c.trackFirstDelta(evt.ResponseID)
		c.pub.Publish(broadcast.Delta(evt.ResponseID, evt.Delta))
		if c.kpi != nil {
			c.kpi.IncrDeltas()
		}
		c.metrics.TextDeltas.Add(c.ctx, 1)

	case "response.done":
		if evt.Response == nil {
			return
		}
		c.trackResponseDone(evt.Response.ID, evt.Response.Status)
		c.pub.Publish(broadcast.Complete(evt.Response.ID))

	case "error":
		if evt.Error == nil {
			return
		}
		slog.Error("realtime service reported an error", "message", evt.Error.Message)
		c.pub.Publish(broadcast.Error(evt.Error.Message))
		if c.kpi != nil {
			c.kpi.IncrRemoteErrors()
		}
		c.metrics.RemoteErrors.Add(c.ctx, 1)
	}
}

// trackFirstDelta records request-to-first-delta latency once per response.
func (c *Conn) trackFirstDelta(responseID string) {
	c.timingMu.Lock()
	defer c.timingMu.Unlock()

	if _, seen := c.inflight[responseID]; seen {
		return
	}
	requestedAt := c.lastRequestedAt
	c.inflight[responseID] = requestedAt

	if requestedAt.IsZero() {
		return
	}
	latency := time.Since(requestedAt)
	if c.kpi != nil {
		c.kpi.RecordFirstDelta(latency)
	}
	c.metrics.FirstDeltaLatency.Record(c.ctx, latency.Seconds())
	slog.Debug("first delta", "response", responseID, "latency", latency)
}

// trackResponseDone records request-to-completion latency and the terminal
// status.
func (c *Conn) trackResponseDone(responseID, status string) {
	c.timingMu.Lock()
	requestedAt, ok := c.inflight[responseID]
	delete(c.inflight, responseID)
	c.timingMu.Unlock()

	if ok && !requestedAt.IsZero() {
		duration := time.Since(requestedAt)
		if c.kpi != nil {
			c.kpi.RecordFullResponse(duration)
		}
		c.metrics.ResponseDuration.Record(c.ctx, duration.Seconds())
		slog.Debug("response done", "response", responseID, "status", status, "duration", duration)
	}
	c.metrics.RecordResponseDone(c.ctx, status)
}

// ── Lifecycle ──────────────────────────────────────────────────────────────────

// Done is closed when the read loop exits, whether from a local Close, a
// service-initiated close, or a transport failure. Check [Conn.Err] to tell
// those apart.
func (c *Conn) Done() <-chan struct{} { return c.readDone }

// Err returns the first transport error observed, or nil after a clean
// close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Conn) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

// Close stops intake of new actions, flushes queued writes (bounded by
// flushTimeout), closes the socket, and waits for the read loop to exit.
// Safe to call multiple times and safe to call after a remote close.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)

		select {
		case <-c.writeDone:
		case <-time.After(flushTimeout):
			slog.Warn("realtime write queue flush timed out")
		}

		c.cancel()
		_ = c.ws.Close(websocket.StatusNormalClosure, "shutting down")
		<-c.readDone
	})
	return nil
}
