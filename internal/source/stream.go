package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
)

const (
	// readBufferSize is the size of each read from the decoder's stdout.
	readBufferSize = 4096

	// streamBuffer is the capacity of the PCM chunk channel. It absorbs
	// short consumer stalls without pausing the decoder read loop.
	streamBuffer = 32
)

// Decoder launches ffmpeg to decode a live stream into raw 16-bit mono PCM.
type Decoder struct {
	ffmpegPath string
	sampleRate int
}

// DecoderOption customises a [Decoder].
type DecoderOption func(*Decoder)

// WithFFmpegPath sets the ffmpeg binary to launch. Default "ffmpeg".
func WithFFmpegPath(path string) DecoderOption {
	return func(d *Decoder) {
		d.ffmpegPath = path
	}
}

// WithSampleRate sets the output PCM sample rate in Hz. Default 24000.
func WithSampleRate(rate int) DecoderOption {
	return func(d *Decoder) {
		d.sampleRate = rate
	}
}

// NewDecoder returns a decoder with the given options applied.
func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		ffmpegPath: "ffmpeg",
		sampleRate: 24000,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// args builds the ffmpeg invocation for streamURL. The input flags keep
// ffmpeg from buffering the live stream; the output is raw s16le mono PCM on
// stdout, flushed per packet.
func (d *Decoder) args(streamURL string) []string {
	return []string{
		"-fflags", "+nobuffer",
		"-flags", "+low_delay",
		"-probesize", "32",
		"-analyzeduration", "0",
		"-i", streamURL,
		"-f", "s16le",
		"-ar", strconv.Itoa(d.sampleRate),
		"-ac", "1",
		"-flush_packets", "1",
		"-",
	}
}

// Stream launches ffmpeg against streamURL and returns a channel of PCM
// chunks read from its stdout. The channel is closed when the process exits,
// its stdout fails, or ctx is cancelled; the process is killed and reaped in
// all cases. Each chunk is an independent copy owned by the receiver.
func (d *Decoder) Stream(ctx context.Context, streamURL string) (<-chan []byte, error) {
	cmd := exec.CommandContext(ctx, d.ffmpegPath, d.args(streamURL)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("source: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("source: start %s: %w", d.ffmpegPath, err)
	}

	slog.Debug("decoder started", "url", streamURL, "pid", cmd.Process.Pid)

	ch := make(chan []byte, streamBuffer)

	go func() {
		defer close(ch)
		defer func() {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			slog.Debug("decoder stopped", "url", streamURL)
		}()

		buf := make([]byte, readBufferSize)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case ch <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					slog.Error("decoder read failed", "url", streamURL, "error", err)
				}
				return
			}
		}
	}()

	return ch, nil
}
