package audio

import "bytes"

// Batcher accumulates arbitrarily sized byte chunks and emits them as
// size-bounded frames. A frame is emitted as soon as the buffered length
// reaches the threshold, so every frame is at least threshold bytes long
// except a final [Batcher.Flush] remainder. Chunks are never dropped or
// reordered. Not safe for concurrent use; create one per stream.
type Batcher struct {
	threshold int
	buf       bytes.Buffer
}

// NewBatcher returns a Batcher emitting frames of at least threshold bytes.
func NewBatcher(threshold int) *Batcher {
	return &Batcher{threshold: threshold}
}

// Write appends chunk to the buffer. When the buffered length has reached
// the threshold it returns the whole buffer as one frame and resets the
// buffer; otherwise it returns nil.
func (b *Batcher) Write(chunk []byte) []byte {
	b.buf.Write(chunk)
	if b.buf.Len() < b.threshold {
		return nil
	}
	return b.take()
}

// Flush returns the buffered remainder as a final short frame, or nil when
// the buffer is empty. This is the only case where an emitted frame may be
// shorter than the threshold.
func (b *Batcher) Flush() []byte {
	if b.buf.Len() == 0 {
		return nil
	}
	return b.take()
}

// Buffered returns the number of bytes accumulated but not yet emitted.
func (b *Batcher) Buffered() int {
	return b.buf.Len()
}

func (b *Batcher) take() []byte {
	frame := make([]byte, b.buf.Len())
	copy(frame, b.buf.Bytes())
	b.buf.Reset()
	return frame
}

// BatchStream wraps in with a batching goroutine. Frames come out in input
// order; when in closes, any remainder is flushed as a final short frame
// and the returned channel is closed. Uses cap(in) for the output buffer.
func BatchStream(in <-chan []byte, threshold int) <-chan []byte {
	out := make(chan []byte, cap(in))
	go func() {
		defer close(out)
		b := NewBatcher(threshold)
		for chunk := range in {
			if frame := b.Write(chunk); frame != nil {
				out <- frame
			}
		}
		if frame := b.Flush(); frame != nil {
			out <- frame
		}
	}()
	return out
}
