package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a defaulted,
// validated [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with their documented defaults.
// The API key additionally falls back to the OPENAI_API_KEY environment
// variable, matching how the binary is usually deployed.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":3000"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-realtime-mini"
	}
	if cfg.OpenAI.Instructions == "" {
		cfg.OpenAI.Instructions = DefaultInstructions
	}
	if cfg.OpenAI.DialAttempts == 0 {
		cfg.OpenAI.DialAttempts = 5
	}
	if cfg.OpenAI.DialBackoffMs == 0 {
		cfg.OpenAI.DialBackoffMs = 1000
	}
	if cfg.OpenAI.MaxDialBackoffMs == 0 {
		cfg.OpenAI.MaxDialBackoffMs = 30000
	}
	if cfg.OpenAI.SendQueueSize == 0 {
		cfg.OpenAI.SendQueueSize = 256
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 24000
	}
	if cfg.Audio.FFmpegPath == "" {
		cfg.Audio.FFmpegPath = "ffmpeg"
	}
	if cfg.Pipeline.BatchMs == 0 {
		cfg.Pipeline.BatchMs = 20
	}
	if cfg.Pipeline.CheckpointSeconds == 0 {
		cfg.Pipeline.CheckpointSeconds = 3
	}
	if cfg.Pipeline.ResponseSeconds == 0 {
		cfg.Pipeline.ResponseSeconds = 15
	}
	if cfg.Pipeline.PollMs == 0 {
		cfg.Pipeline.PollMs = 1000
	}
	if cfg.Pipeline.RestartPauseMs == 0 {
		cfg.Pipeline.RestartPauseMs = 1000
	}
	if cfg.Broadcast.BufferSize == 0 {
		cfg.Broadcast.BufferSize = 64
	}
	// A file that never mentions stations gets the bundled catalog. An
	// explicit empty list keeps its meaning of "no stations".
	if cfg.Stations == nil {
		cfg.Stations = DefaultStations()
	}
	for i := range cfg.Stations {
		if cfg.Stations[i].Name == "" {
			cfg.Stations[i].Name = cfg.Stations[i].ID
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr must not be empty"))
	}
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// OpenAI
	if cfg.OpenAI.APIKey == "" {
		slog.Warn("openai.api_key is empty and OPENAI_API_KEY is not set; the pipeline will fail to connect until a key is provided")
	}
	if cfg.OpenAI.DialAttempts < 1 {
		errs = append(errs, fmt.Errorf("openai.dial_attempts %d must be at least 1", cfg.OpenAI.DialAttempts))
	}
	if cfg.OpenAI.DialBackoffMs < 1 {
		errs = append(errs, fmt.Errorf("openai.dial_backoff_ms %d must be positive", cfg.OpenAI.DialBackoffMs))
	}
	if cfg.OpenAI.MaxDialBackoffMs < cfg.OpenAI.DialBackoffMs {
		errs = append(errs, fmt.Errorf("openai.max_dial_backoff_ms %d must be at least dial_backoff_ms %d", cfg.OpenAI.MaxDialBackoffMs, cfg.OpenAI.DialBackoffMs))
	}
	if cfg.OpenAI.SendQueueSize < 1 {
		errs = append(errs, fmt.Errorf("openai.send_queue_size %d must be at least 1", cfg.OpenAI.SendQueueSize))
	}

	// Audio
	if cfg.Audio.SampleRate < 1 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}

	// Pipeline timing. The checkpoint window must be strictly inside the
	// response window or intermediate commits can never fire.
	if cfg.Pipeline.BatchMs < 1 {
		errs = append(errs, fmt.Errorf("pipeline.batch_ms %d must be positive", cfg.Pipeline.BatchMs))
	}
	if cfg.Pipeline.CheckpointSeconds < 1 {
		errs = append(errs, fmt.Errorf("pipeline.checkpoint_seconds %d must be positive", cfg.Pipeline.CheckpointSeconds))
	}
	if cfg.Pipeline.ResponseSeconds <= cfg.Pipeline.CheckpointSeconds {
		errs = append(errs, fmt.Errorf("pipeline.response_seconds %d must be strictly greater than checkpoint_seconds %d", cfg.Pipeline.ResponseSeconds, cfg.Pipeline.CheckpointSeconds))
	}
	if cfg.Pipeline.PollMs < 1 {
		errs = append(errs, fmt.Errorf("pipeline.poll_ms %d must be positive", cfg.Pipeline.PollMs))
	}
	if cfg.Pipeline.RestartPauseMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.restart_pause_ms %d must not be negative", cfg.Pipeline.RestartPauseMs))
	}

	// Broadcast
	if cfg.Broadcast.BufferSize < 1 {
		errs = append(errs, fmt.Errorf("broadcast.buffer_size %d must be at least 1", cfg.Broadcast.BufferSize))
	}

	// Stations
	if len(cfg.Stations) == 0 {
		slog.Warn("no stations configured; the control API will have nothing to select")
	}
	idsSeen := make(map[string]int, len(cfg.Stations))
	for i, st := range cfg.Stations {
		prefix := fmt.Sprintf("stations[%d]", i)
		if st.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else if prev, ok := idsSeen[st.ID]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of stations[%d]", prefix, st.ID, prev))
		} else {
			idsSeen[st.ID] = i
		}
		if st.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required", prefix))
		}
	}

	return errors.Join(errs...)
}
