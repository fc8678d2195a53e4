package config_test

import (
	"testing"

	"github.com/MrWong99/aircheck/internal/config"
)

func stationSet(stations ...config.StationConfig) *config.Config {
	return &config.Config{Stations: stations}
}

func TestDiff_NoChanges(t *testing.T) {
	old := stationSet(config.StationConfig{ID: "franceinfo", Name: "France Info", URL: "https://a"})
	old.Server.LogLevel = config.LogInfo
	new := stationSet(config.StationConfig{ID: "franceinfo", Name: "France Info", URL: "https://a"})
	new.Server.LogLevel = config.LogInfo

	d := config.Diff(old, new)
	if d.LogLevelChanged || d.StationsChanged {
		t.Errorf("diff reported changes for identical configs: %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	old := &config.Config{}
	old.Server.LogLevel = config.LogInfo
	new := &config.Config{}
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("LogLevelChanged = false, want true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
}

func TestDiff_StationAddedAndRemoved(t *testing.T) {
	old := stationSet(
		config.StationConfig{ID: "franceinfo", URL: "https://a"},
		config.StationConfig{ID: "franceinter", URL: "https://b"},
	)
	new := stationSet(
		config.StationConfig{ID: "franceinfo", URL: "https://a"},
		config.StationConfig{ID: "franceculture", URL: "https://c"},
	)

	d := config.Diff(old, new)
	if !d.StationsChanged {
		t.Fatal("StationsChanged = false, want true")
	}

	byID := make(map[string]config.StationDiff)
	for _, sd := range d.StationChanges {
		byID[sd.ID] = sd
	}
	if sd, ok := byID["franceculture"]; !ok || !sd.Added {
		t.Errorf("franceculture should be reported as added, got %+v", byID)
	}
	if sd, ok := byID["franceinter"]; !ok || !sd.Removed {
		t.Errorf("franceinter should be reported as removed, got %+v", byID)
	}
	if _, ok := byID["franceinfo"]; ok {
		t.Errorf("franceinfo is unchanged and should not appear in the diff")
	}
}

func TestDiff_StationURLAndNameChanged(t *testing.T) {
	old := stationSet(config.StationConfig{ID: "franceinfo", Name: "France Info", URL: "https://a"})
	new := stationSet(config.StationConfig{ID: "franceinfo", Name: "France Info HD", URL: "https://b"})

	d := config.Diff(old, new)
	if !d.StationsChanged || len(d.StationChanges) != 1 {
		t.Fatalf("expected one station change, got %+v", d)
	}
	sd := d.StationChanges[0]
	if sd.Added || sd.Removed {
		t.Errorf("station reported as added/removed, want modified only: %+v", sd)
	}
	if !sd.URLChanged {
		t.Error("URLChanged = false, want true")
	}
	if !sd.NameChanged {
		t.Error("NameChanged = false, want true")
	}
}
