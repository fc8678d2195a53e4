// Package realtime maintains the persistent websocket connection to the
// OpenAI Realtime API.
//
// A [Client] dials the service with exponential backoff and configures the
// session before any audio flows. The resulting [Conn] exposes the three
// outbound actions the audio pipeline needs (append, commit, create
// response) behind a bounded write queue, and runs a read loop that turns
// inbound text deltas, completions, and errors into broadcast messages.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrWong99/aircheck/internal/observe"
	"github.com/MrWong99/aircheck/internal/stats"
	"github.com/coder/websocket"
)

const (
	// DefaultModel is the realtime model used when none is configured.
	DefaultModel = "gpt-realtime-mini"

	// DefaultBaseURL is the production realtime endpoint.
	DefaultBaseURL = "wss://api.openai.com/v1/realtime"

	// DefaultQueueSize is the outbound write queue capacity.
	DefaultQueueSize = 256

	defaultDialAttempts   = 5
	defaultDialBackoff    = time.Second
	defaultMaxDialBackoff = 30 * time.Second

	// maxEventSize caps inbound message size. response.done events carry the
	// full generated text.
	maxEventSize = 10 * 1024 * 1024
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithModel sets the realtime model requested at dial time.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithBaseURL overrides the websocket endpoint. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithInstructions sets the behavioral instructions sent in session.update.
func WithInstructions(instructions string) Option {
	return func(c *Client) { c.instructions = instructions }
}

// WithSampleRate declares the PCM input sample rate in Hz. Default 24000.
func WithSampleRate(rate int) Option {
	return func(c *Client) { c.sampleRate = rate }
}

// WithDialAttempts sets the handshake attempt ceiling. Default 5.
func WithDialAttempts(n int) Option {
	return func(c *Client) { c.dialAttempts = n }
}

// WithDialBackoff sets the initial and maximum backoff between handshake
// attempts. The delay doubles after each failure up to max.
func WithDialBackoff(base, max time.Duration) Option {
	return func(c *Client) {
		c.dialBackoff = base
		c.maxDialBackoff = max
	}
}

// WithQueueSize sets the outbound write queue capacity. Default 256.
func WithQueueSize(n int) Option {
	return func(c *Client) { c.queueSize = n }
}

// WithStats wires pipeline KPI counters into the connection.
func WithStats(kpi *stats.Pipeline) Option {
	return func(c *Client) { c.kpi = kpi }
}

// WithMetrics overrides the OTel instruments, mainly for tests.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// ── Client ─────────────────────────────────────────────────────────────────────

// Client dials the realtime service and hands out configured connections.
type Client struct {
	apiKey       string
	model        string
	baseURL      string
	instructions string
	sampleRate   int

	dialAttempts   int
	dialBackoff    time.Duration
	maxDialBackoff time.Duration
	queueSize      int

	pub     Publisher
	kpi     *stats.Pipeline
	metrics *observe.Metrics
}

// NewClient creates a client that publishes inbound events to pub.
func NewClient(apiKey string, pub Publisher, opts ...Option) *Client {
	c := &Client{
		apiKey:         apiKey,
		model:          DefaultModel,
		baseURL:        DefaultBaseURL,
		sampleRate:     24000,
		dialAttempts:   defaultDialAttempts,
		dialBackoff:    defaultDialBackoff,
		maxDialBackoff: defaultMaxDialBackoff,
		queueSize:      DefaultQueueSize,
		pub:            pub,
		metrics:        observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect establishes a connection, retrying the handshake with exponential
// backoff up to the attempt ceiling. On success it sends the session
// configuration before returning, so the connection is ready for audio
// immediately.
func (c *Client) Connect(ctx context.Context) (*Conn, error) {
	wsURL := fmt.Sprintf("%s?model=%s", c.baseURL, c.model)

	var ws *websocket.Conn
	var err error
	backoff := c.dialBackoff
	for attempt := 1; ; attempt++ {
		ws, _, err = websocket.Dial(ctx, wsURL, &websocket.DialOptions{
			HTTPHeader: http.Header{
				"Authorization": []string{"Bearer " + c.apiKey},
			},
		})
		if err == nil {
			break
		}
		c.metrics.RecordConnect(ctx, "error")
		if attempt >= c.dialAttempts {
			return nil, fmt.Errorf("realtime: connect after %d attempts: %w", c.dialAttempts, err)
		}
		slog.Warn("realtime dial failed",
			"attempt", attempt, "max", c.dialAttempts, "retry_in", backoff, "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff = min(backoff*2, c.maxDialBackoff)
	}
	c.metrics.RecordConnect(ctx, "ok")
	ws.SetReadLimit(maxEventSize)

	// The session configuration must reach the service before any audio.
	cfg, err := newSessionUpdate(c.model, c.instructions, c.sampleRate)
	if err != nil {
		ws.Close(websocket.StatusInternalError, "session config failed")
		return nil, err
	}
	if err := ws.Write(ctx, websocket.MessageText, cfg); err != nil {
		ws.Close(websocket.StatusInternalError, "session config failed")
		return nil, fmt.Errorf("realtime: send session update: %w", err)
	}

	conn := newConn(ws, c.pub, c.kpi, c.metrics, c.queueSize)
	conn.start()

	slog.Info("realtime connected", "model", c.model)
	return conn, nil
}
