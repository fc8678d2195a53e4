package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/aircheck/internal/config"
)

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	yaml := `
stations:
  - id: franceinfo
    url: "https://icecast.radiofrance.fr/franceinfo-midfi.mp3"
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":3000" {
		t.Errorf("listen_addr default = %q, want :3000", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level default = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.OpenAI.Model != "gpt-realtime-mini" {
		t.Errorf("model default = %q, want gpt-realtime-mini", cfg.OpenAI.Model)
	}
	if cfg.OpenAI.Instructions != config.DefaultInstructions {
		t.Errorf("instructions default not applied")
	}
	if cfg.OpenAI.DialAttempts != 5 {
		t.Errorf("dial_attempts default = %d, want 5", cfg.OpenAI.DialAttempts)
	}
	if cfg.OpenAI.DialBackoffMs != 1000 || cfg.OpenAI.MaxDialBackoffMs != 30000 {
		t.Errorf("backoff defaults = %d/%d, want 1000/30000", cfg.OpenAI.DialBackoffMs, cfg.OpenAI.MaxDialBackoffMs)
	}
	if cfg.OpenAI.SendQueueSize != 256 {
		t.Errorf("send_queue_size default = %d, want 256", cfg.OpenAI.SendQueueSize)
	}
	if cfg.Audio.SampleRate != 24000 {
		t.Errorf("sample_rate default = %d, want 24000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.FFmpegPath != "ffmpeg" {
		t.Errorf("ffmpeg_path default = %q, want ffmpeg", cfg.Audio.FFmpegPath)
	}
	if cfg.Pipeline.BatchMs != 20 || cfg.Pipeline.CheckpointSeconds != 3 || cfg.Pipeline.ResponseSeconds != 15 {
		t.Errorf("pipeline defaults = %d/%d/%d, want 20/3/15",
			cfg.Pipeline.BatchMs, cfg.Pipeline.CheckpointSeconds, cfg.Pipeline.ResponseSeconds)
	}
	if cfg.Broadcast.BufferSize != 64 {
		t.Errorf("buffer_size default = %d, want 64", cfg.Broadcast.BufferSize)
	}
	// Station name falls back to the id.
	if cfg.Stations[0].Name != "franceinfo" {
		t.Errorf("station name default = %q, want franceinfo", cfg.Stations[0].Name)
	}
}

func TestLoadFromReader_EmptyInputIsAllDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":3000" {
		t.Errorf("listen_addr = %q, want :3000", cfg.Server.ListenAddr)
	}
	// An absent stations key yields the bundled Radio France catalog.
	if len(cfg.Stations) != 3 {
		t.Fatalf("stations = %d, want the 3 bundled ones", len(cfg.Stations))
	}
	if cfg.Stations[0].ID != "franceinfo" || cfg.Stations[0].Name != "France Info" {
		t.Errorf("first bundled station = %+v", cfg.Stations[0])
	}
}

func TestLoadFromReader_ExplicitEmptyStationsStaysEmpty(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader("stations: []\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Stations) != 0 {
		t.Errorf("stations = %v, want none", cfg.Stations)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	yaml := `
server:
  listen_addr: ":3000"
  listne_addr_typo: ":3001"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_ResponseWindowMustExceedCheckpoint(t *testing.T) {
	yaml := `
pipeline:
  checkpoint_seconds: 15
  response_seconds: 15
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for response_seconds <= checkpoint_seconds, got nil")
	}
	if !strings.Contains(err.Error(), "strictly greater") {
		t.Errorf("error should mention the window ordering, got: %v", err)
	}
}

func TestValidate_DuplicateStationIDs(t *testing.T) {
	yaml := `
stations:
  - id: franceinfo
    url: "https://example.test/a"
  - id: franceinfo
    url: "https://example.test/b"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for duplicate station ids, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidate_StationRequiresIDAndURL(t *testing.T) {
	yaml := `
stations:
  - name: Mystery Station
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for station without id and url, got nil")
	}
	if !strings.Contains(err.Error(), "id is required") {
		t.Errorf("error should mention missing id, got: %v", err)
	}
	if !strings.Contains(err.Error(), "url is required") {
		t.Errorf("error should mention missing url, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	yaml := `
server:
  log_level: loud
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_NegativeTimingValues(t *testing.T) {
	yaml := `
pipeline:
  batch_ms: -20
openai:
  dial_attempts: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative timing values, got nil")
	}
	if !strings.Contains(err.Error(), "batch_ms") {
		t.Errorf("error should mention batch_ms, got: %v", err)
	}
	if !strings.Contains(err.Error(), "dial_attempts") {
		t.Errorf("error should mention dial_attempts, got: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/aircheck.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
