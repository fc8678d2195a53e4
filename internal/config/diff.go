package config

// Diff describes what changed between two configs. Only fields that can be
// safely hot-reloaded are tracked; everything else requires a restart.
type DiffResult struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	StationsChanged bool
	StationChanges  []StationDiff
}

// StationDiff describes what changed for a single station between two configs.
type StationDiff struct {
	ID          string
	Added       bool
	Removed     bool
	URLChanged  bool
	NameChanged bool
}

// Diff compares old and new configs and returns what changed among the
// hot-reloadable fields.
func Diff(old, new *Config) DiffResult {
	d := DiffResult{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldStations := make(map[string]*StationConfig, len(old.Stations))
	for i := range old.Stations {
		oldStations[old.Stations[i].ID] = &old.Stations[i]
	}
	newStations := make(map[string]*StationConfig, len(new.Stations))
	for i := range new.Stations {
		newStations[new.Stations[i].ID] = &new.Stations[i]
	}

	// Modified and removed stations.
	for id, oldSt := range oldStations {
		newSt, exists := newStations[id]
		if !exists {
			d.StationChanges = append(d.StationChanges, StationDiff{ID: id, Removed: true})
			d.StationsChanged = true
			continue
		}
		sd := StationDiff{
			ID:          id,
			URLChanged:  oldSt.URL != newSt.URL,
			NameChanged: oldSt.Name != newSt.Name,
		}
		if sd.URLChanged || sd.NameChanged {
			d.StationChanges = append(d.StationChanges, sd)
			d.StationsChanged = true
		}
	}

	// Added stations.
	for id := range newStations {
		if _, exists := oldStations[id]; !exists {
			d.StationChanges = append(d.StationChanges, StationDiff{ID: id, Added: true})
			d.StationsChanged = true
		}
	}

	return d
}
