package realtime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// sessionUpdateMessage configures the realtime session. It must be the first
// message on a new connection.
type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Type             string      `json:"type"`
	Audio            audioParams `json:"audio"`
	Instructions     string      `json:"instructions"`
	Model            string      `json:"model"`
	OutputModalities []string    `json:"output_modalities"`
	Tracing          string      `json:"tracing"`
}

type audioParams struct {
	Input audioInputParams `json:"input"`
}

// audioInputParams declares the inbound PCM format. TurnDetection and
// NoiseReduction deliberately marshal as explicit nulls: the service must not
// segment or filter the radio feed, commits are driven by the duty cycle.
type audioInputParams struct {
	Format         audioFormat `json:"format"`
	TurnDetection  any         `json:"turn_detection"`
	NoiseReduction any         `json:"noise_reduction"`
}

type audioFormat struct {
	Type string `json:"type"`
	Rate int    `json:"rate"`
}

// newSessionUpdate builds the session.update payload for the given model,
// instructions, and input sample rate.
func newSessionUpdate(model, instructions string, sampleRate int) ([]byte, error) {
	msg := sessionUpdateMessage{
		Type: "session.update",
		Session: sessionParams{
			Type: "realtime",
			Audio: audioParams{
				Input: audioInputParams{
					Format: audioFormat{Type: "audio/pcm", Rate: sampleRate},
				},
			},
			Instructions:     instructions,
			Model:            model,
			OutputModalities: []string{"text"},
			Tracing:          "auto",
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("realtime: marshal session update: %w", err)
	}
	return data, nil
}

// Pre-serialized wire messages. Audio appends happen tens of times per
// second, so the frame payload is assembled with byte appends instead of a
// struct marshal per call.
var (
	appendAudioPrefix = []byte(`{"type":"input_audio_buffer.append","audio":"`)
	appendAudioSuffix = []byte(`"}`)
	commitMessage     = []byte(`{"type":"input_audio_buffer.commit"}`)
	responseCreateMsg = []byte(`{"type":"response.create"}`)
)

// appendAudioMessage builds an input_audio_buffer.append payload carrying the
// frame as base64. Base64 output never needs JSON escaping, so the payload
// can be concatenated directly.
func appendAudioMessage(frame []byte) []byte {
	encoded := base64.StdEncoding.EncodeToString(frame)
	msg := make([]byte, 0, len(appendAudioPrefix)+len(encoded)+len(appendAudioSuffix))
	msg = append(msg, appendAudioPrefix...)
	msg = append(msg, encoded...)
	msg = append(msg, appendAudioSuffix...)
	return msg
}
