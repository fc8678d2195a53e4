// Package source manages the selectable radio stations and turns their live
// streams into raw PCM audio via ffmpeg.
package source

import (
	"sync"
)

// StationID identifies a station in the catalog.
type StationID string

// Station describes one selectable live radio stream.
type Station struct {
	ID   StationID `json:"id"`
	Name string    `json:"name"`
	URL  string    `json:"url"`
}

// Catalog is a thread-safe, ordered set of stations. The whole set can be
// swapped at runtime when the configuration file changes.
type Catalog struct {
	mu       sync.RWMutex
	stations []Station
	index    map[StationID]int
}

// NewCatalog returns a catalog holding the given stations in the given
// display order. The slice is copied.
func NewCatalog(stations []Station) *Catalog {
	c := &Catalog{}
	c.Replace(stations)
	return c
}

// Replace swaps the full station set. Readers observe either the old or the
// new set, never a mix.
func (c *Catalog) Replace(stations []Station) {
	next := make([]Station, len(stations))
	copy(next, stations)
	index := make(map[StationID]int, len(next))
	for i, st := range next {
		index[st.ID] = i
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stations = next
	c.index = index
}

// ByID looks up a station by its identifier.
func (c *Catalog) ByID(id StationID) (Station, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.index[id]
	if !ok {
		return Station{}, false
	}
	return c.stations[i], true
}

// All returns the stations in display order. The returned slice is a copy.
func (c *Catalog) All() []Station {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Station, len(c.stations))
	copy(out, c.stations)
	return out
}

// Len returns the number of stations in the catalog.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stations)
}
