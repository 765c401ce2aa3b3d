// Package journal models the geotagged journal collection as far as the LED
// coordinator needs it: the entry records the dashboard reports, the stable
// mapping from entries to physical strip positions, the per-type color
// palette, and the change detection that separates genuine browsing activity
// from no-op data refreshes.
package journal

import "time"

// Location is the geotag of an entry.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Place     string  `json:"place,omitempty"`
}

// Entry is one journal entry as owned by the dashboard side. The coordinator
// never mutates entries, it only reads them.
type Entry struct {
	UUID         string    `json:"uuid"`
	Type         string    `json:"type"`
	CreationDate time.Time `json:"creationDate"`
	Region       string    `json:"region,omitempty"`
	Location     *Location `json:"location,omitempty"`
}
