package source

import "sync"

// Selector holds the station the pipeline should be tuned to. It is the
// single point of coordination between the HTTP control surface, which sets
// the selection, and the streaming pipeline, which polls it.
//
// The zero value is an empty selection.
type Selector struct {
	mu      sync.RWMutex
	current StationID
	set     bool
}

// NewSelector returns a selector with no station selected.
func NewSelector() *Selector {
	return &Selector{}
}

// Set selects the given station.
func (s *Selector) Set(id StationID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = id
	s.set = true
}

// Clear empties the selection. The pipeline falls back to waiting for a
// station once its current cycle notices.
func (s *Selector) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = ""
	s.set = false
}

// Current returns the selected station ID and whether one is selected.
func (s *Selector) Current() (StationID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.set
}
