// Package config provides the configuration schema, loader, and reload
// watcher for the aircheck server.
package config

// LogLevel controls log verbosity for the aircheck server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// DefaultInstructions is the commentator prompt used when the config does
// not set one. The default persona matches the bundled French stations.
const DefaultInstructions = "Tu écoutes une radio française en direct. " +
	"Commente ce que tu entends au fil de l'eau, en français, sur un ton " +
	"complice et légèrement moqueur. Résume ce qui vient d'être dit, relève " +
	"les formules toutes faites et les moments absurdes. Deux ou trois " +
	"phrases par intervention, jamais plus."

// Config is the root configuration structure for aircheck.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Audio     AudioConfig     `yaml:"audio"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Stations  []StationConfig `yaml:"stations"`
}

// ServerConfig holds network and logging settings for the aircheck server.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on. Default ":3000".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable. Default "info".
	LogLevel LogLevel `yaml:"log_level"`
}

// OpenAIConfig configures the realtime connection to OpenAI.
type OpenAIConfig struct {
	// APIKey authenticates against the realtime API. When empty, the
	// OPENAI_API_KEY environment variable is used instead.
	APIKey string `yaml:"api_key"`

	// Model selects the realtime model. Default "gpt-realtime-mini".
	Model string `yaml:"model"`

	// BaseURL overrides the realtime websocket endpoint. Leave empty for
	// the production endpoint; primarily set in tests.
	BaseURL string `yaml:"base_url"`

	// Instructions is the system prompt steering the commentator.
	// Default [DefaultInstructions].
	Instructions string `yaml:"instructions"`

	// DialAttempts caps handshake retries per connection. Default 5.
	DialAttempts int `yaml:"dial_attempts"`

	// DialBackoffMs is the delay after the first failed handshake attempt,
	// in milliseconds. It doubles per attempt. Default 1000.
	DialBackoffMs int `yaml:"dial_backoff_ms"`

	// MaxDialBackoffMs caps the doubling handshake backoff. Default 30000.
	MaxDialBackoffMs int `yaml:"max_dial_backoff_ms"`

	// SendQueueSize bounds the outbound message queue; a full queue applies
	// backpressure to the audio-forwarding loop. Default 256.
	SendQueueSize int `yaml:"send_queue_size"`
}

// AudioConfig describes the PCM stream produced by the decoder subprocess.
type AudioConfig struct {
	// SampleRate in Hz of the decoded 16-bit mono PCM stream. Default 24000,
	// the rate the realtime service expects.
	SampleRate int `yaml:"sample_rate"`

	// FFmpegPath is the decoder binary, resolved via $PATH when not
	// absolute. Default "ffmpeg".
	FFmpegPath string `yaml:"ffmpeg_path"`
}

// PipelineConfig holds the duty-cycle timing knobs. All windows are
// durations over the audio timeline and are converted to byte counts
// through the fixed PCM byte rate.
type PipelineConfig struct {
	// BatchMs is the audio frame granularity forwarded to the realtime
	// service, in milliseconds. Default 20.
	BatchMs int `yaml:"batch_ms"`

	// CheckpointSeconds is the cadence of input buffer commits. Default 3.
	CheckpointSeconds int `yaml:"checkpoint_seconds"`

	// ResponseSeconds is the audio window gathered before each response
	// request. Must be strictly larger than CheckpointSeconds. Default 15.
	ResponseSeconds int `yaml:"response_seconds"`

	// PollMs is the selection polling interval while no station is chosen,
	// in milliseconds. Default 1000.
	PollMs int `yaml:"poll_ms"`

	// RestartPauseMs is the pause before a failed cycle restarts, in
	// milliseconds. Default 1000.
	RestartPauseMs int `yaml:"restart_pause_ms"`
}

// BroadcastConfig tunes subscriber delivery.
type BroadcastConfig struct {
	// BufferSize is the per-subscriber channel capacity. A subscriber that
	// falls further behind than this loses messages. Default 64.
	BufferSize int `yaml:"buffer_size"`
}

// StationConfig describes one selectable radio stream.
type StationConfig struct {
	// ID is the stable identifier used by the control API. Required, unique.
	ID string `yaml:"id"`

	// Name is the human-readable display name. Defaults to ID.
	Name string `yaml:"name"`

	// URL is the live stream endpoint handed to the decoder. Required.
	URL string `yaml:"url"`
}

// DefaultStations returns the bundled Radio France catalog, used when the
// config file does not mention stations at all. An explicitly empty stations
// list disables the bundled catalog.
func DefaultStations() []StationConfig {
	return []StationConfig{
		{
			ID:   "franceinfo",
			Name: "France Info",
			URL:  "https://stream.radiofrance.fr/franceinfo/franceinfo_hifi.m3u8",
		},
		{
			ID:   "franceinter",
			Name: "France Inter",
			URL:  "https://stream.radiofrance.fr/franceinter/franceinter_hifi.m3u8",
		},
		{
			ID:   "franceculture",
			Name: "France Culture",
			URL:  "https://stream.radiofrance.fr/franceculture/franceculture_hifi.m3u8",
		},
	}
}
