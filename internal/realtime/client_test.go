package realtime_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/aircheck/internal/broadcast"
	"github.com/MrWong99/aircheck/internal/realtime"
	"github.com/coder/websocket"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startRealtimeServer launches a test WebSocket server. The handler receives
// the accepted conn. The server is automatically closed when the test
// finishes.
func startRealtimeServer(t *testing.T, handler func(ws *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer ws.Close(websocket.StatusNormalClosure, "done")
		handler(ws, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readJSON reads one WebSocket text frame and decodes it into v.
func readJSON(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := ws.Read(ctx)
	if err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("readJSON unmarshal: %v", err)
	}
}

// writeJSON marshals v and sends it as a text frame.
func writeJSON(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

// noopPublisher satisfies realtime.Publisher for tests that never inspect
// inbound events.
type noopPublisher struct{}

func (noopPublisher) Publish(broadcast.Message) {}

// capturePublisher collects published messages for inspection.
type capturePublisher struct {
	msgs chan broadcast.Message
}

func newCapturePublisher() *capturePublisher {
	return &capturePublisher{msgs: make(chan broadcast.Message, 16)}
}

func (p *capturePublisher) Publish(msg broadcast.Message) { p.msgs <- msg }

// waitMessage receives one broadcast message or fails the test.
func waitMessage(t *testing.T, ch <-chan broadcast.Message) broadcast.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for broadcast message")
		return broadcast.Message{}
	}
}

// ── Constructor tests ─────────────────────────────────────────────────────────

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	c := realtime.NewClient("my-key", noopPublisher{})
	if c == nil {
		t.Fatal("NewClient returned nil")
	}
}

// ── TestConnect_SendsSessionUpdateFirst ───────────────────────────────────────

func TestConnect_SendsSessionUpdateFirst(t *testing.T) {
	t.Parallel()

	type sessionUpdateMsg struct {
		Type    string `json:"type"`
		Session struct {
			Type  string `json:"type"`
			Audio struct {
				Input struct {
					Format struct {
						Type string `json:"type"`
						Rate int    `json:"rate"`
					} `json:"format"`
					TurnDetection  json.RawMessage `json:"turn_detection"`
					NoiseReduction json.RawMessage `json:"noise_reduction"`
				} `json:"input"`
			} `json:"audio"`
			Instructions     string   `json:"instructions"`
			Model            string   `json:"model"`
			OutputModalities []string `json:"output_modalities"`
			Tracing          string   `json:"tracing"`
		} `json:"session"`
	}

	received := make(chan sessionUpdateMsg, 1)

	srv := startRealtimeServer(t, func(ws *websocket.Conn, _ *http.Request) {
		var msg sessionUpdateMsg
		readJSON(t, ws, &msg)
		received <- msg
		<-ws.CloseRead(context.Background()).Done()
	})

	client := realtime.NewClient("key", noopPublisher{},
		realtime.WithBaseURL(wsURL(srv)),
		realtime.WithInstructions("Tu commentes la radio en direct."),
	)
	conn, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	select {
	case msg := <-received:
		if msg.Type != "session.update" {
			t.Errorf("type = %q; want session.update", msg.Type)
		}
		if msg.Session.Type != "realtime" {
			t.Errorf("session.type = %q; want realtime", msg.Session.Type)
		}
		if msg.Session.Model != realtime.DefaultModel {
			t.Errorf("model = %q; want %q", msg.Session.Model, realtime.DefaultModel)
		}
		if msg.Session.Instructions != "Tu commentes la radio en direct." {
			t.Errorf("instructions = %q", msg.Session.Instructions)
		}
		format := msg.Session.Audio.Input.Format
		if format.Type != "audio/pcm" || format.Rate != 24000 {
			t.Errorf("input format = %+v; want audio/pcm at 24000", format)
		}
		// Both fields must be present as explicit nulls, not omitted:
		// omitting them would leave server-side turn detection enabled.
		if string(msg.Session.Audio.Input.TurnDetection) != "null" {
			t.Errorf("turn_detection = %s; want explicit null", msg.Session.Audio.Input.TurnDetection)
		}
		if string(msg.Session.Audio.Input.NoiseReduction) != "null" {
			t.Errorf("noise_reduction = %s; want explicit null", msg.Session.Audio.Input.NoiseReduction)
		}
		if len(msg.Session.OutputModalities) != 1 || msg.Session.OutputModalities[0] != "text" {
			t.Errorf("output_modalities = %v; want [text]", msg.Session.OutputModalities)
		}
		if msg.Session.Tracing != "auto" {
			t.Errorf("tracing = %q; want auto", msg.Session.Tracing)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for session.update")
	}
}

func TestWithModel_SetsModelInURL(t *testing.T) {
	t.Parallel()

	modelInURL := make(chan string, 1)

	srv := startRealtimeServer(t, func(ws *websocket.Conn, r *http.Request) {
		modelInURL <- r.URL.Query().Get("model")
		var raw map[string]any
		readJSON(t, ws, &raw)
		<-ws.CloseRead(context.Background()).Done()
	})

	client := realtime.NewClient("key", noopPublisher{},
		realtime.WithBaseURL(wsURL(srv)),
		realtime.WithModel("gpt-realtime"),
	)
	conn, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	select {
	case m := <-modelInURL:
		if m != "gpt-realtime" {
			t.Errorf("model in URL = %q; want gpt-realtime", m)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout")
	}
}

func TestWithSampleRate_SetsInputRate(t *testing.T) {
	t.Parallel()

	type sessionUpdateMsg struct {
		Session struct {
			Audio struct {
				Input struct {
					Format struct {
						Rate int `json:"rate"`
					} `json:"format"`
				} `json:"input"`
			} `json:"audio"`
		} `json:"session"`
	}

	received := make(chan sessionUpdateMsg, 1)

	srv := startRealtimeServer(t, func(ws *websocket.Conn, _ *http.Request) {
		var msg sessionUpdateMsg
		readJSON(t, ws, &msg)
		received <- msg
		<-ws.CloseRead(context.Background()).Done()
	})

	client := realtime.NewClient("key", noopPublisher{},
		realtime.WithBaseURL(wsURL(srv)),
		realtime.WithSampleRate(16000),
	)
	conn, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	select {
	case msg := <-received:
		if got := msg.Session.Audio.Input.Format.Rate; got != 16000 {
			t.Errorf("input rate = %d; want 16000", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for session.update")
	}
}

func TestConnect_SendsAuthHeader(t *testing.T) {
	t.Parallel()

	authHeader := make(chan string, 1)

	srv := startRealtimeServer(t, func(ws *websocket.Conn, r *http.Request) {
		authHeader <- r.Header.Get("Authorization")
		var raw map[string]any
		readJSON(t, ws, &raw)
		<-ws.CloseRead(context.Background()).Done()
	})

	client := realtime.NewClient("my-secret-token", noopPublisher{}, realtime.WithBaseURL(wsURL(srv)))
	conn, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	select {
	case auth := <-authHeader:
		if auth != "Bearer my-secret-token" {
			t.Errorf("Authorization = %q; want Bearer my-secret-token", auth)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout")
	}
}

// ── TestConnect_RetriesWithBackoff ────────────────────────────────────────────

func TestConnect_RetriesWithBackoff(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 4 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer ws.Close(websocket.StatusNormalClosure, "done")
		var raw map[string]any
		readJSON(t, ws, &raw)
		<-ws.CloseRead(context.Background()).Done()
	}))
	t.Cleanup(srv.Close)

	client := realtime.NewClient("key", noopPublisher{},
		realtime.WithBaseURL(wsURL(srv)),
		realtime.WithDialAttempts(5),
		realtime.WithDialBackoff(5*time.Millisecond, 80*time.Millisecond),
	)

	start := time.Now()
	conn, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	if got := attempts.Load(); got != 5 {
		t.Errorf("handshake attempts = %d; want 5", got)
	}
	// Four failures wait 5, 10, 20, and 40ms before the final attempt.
	if elapsed := time.Since(start); elapsed < 75*time.Millisecond {
		t.Errorf("connected after %v; want at least 75ms of accumulated backoff", elapsed)
	}
}

func TestConnect_FailsAfterAttemptCeiling(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	client := realtime.NewClient("key", noopPublisher{},
		realtime.WithBaseURL(wsURL(srv)),
		realtime.WithDialAttempts(3),
		realtime.WithDialBackoff(time.Millisecond, 4*time.Millisecond),
	)

	_, err := client.Connect(context.Background())
	if err == nil {
		t.Fatal("Connect should fail once the attempt ceiling is reached")
	}
	if !strings.Contains(err.Error(), "3 attempts") {
		t.Errorf("error = %v; want mention of the attempt ceiling", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("handshake attempts = %d; want 3", got)
	}
}

func TestConnect_CancelledContext_ReturnsError(t *testing.T) {
	t.Parallel()

	srv := startRealtimeServer(t, func(ws *websocket.Conn, _ *http.Request) {
		<-ws.CloseRead(context.Background()).Done()
	})

	client := realtime.NewClient("key", noopPublisher{}, realtime.WithBaseURL(wsURL(srv)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.Connect(ctx); err == nil {
		t.Fatal("Connect with cancelled context should return an error")
	}
}
