package journal

import (
	"time"

	"github.com/google/uuid"
)

type demoSite struct {
	entryType string
	region    string
	place     string
	lat, lon  float64
}

// Rough itinerary for the simulation collection. Entries cycle through these
// sites so every palette color shows up on the strip.
var demoSites = []demoSite{
	{"Beach", "Atlantic Coast", "Praia da Marinha", 37.089, -8.412},
	{"Desert", "High Desert", "Wadi Rum", 29.576, 35.420},
	{"Lake", "North Shore", "Lake Bled", 46.363, 14.094},
	{"Mountain", "Cascades", "Mount Rainier", 46.852, -121.760},
	{"River", "River Valley", "Douro Valley", 41.163, -7.786},
	{"Ruin", "Old City", "Ephesus", 37.941, 27.342},
}

// DemoCollection builds n synthetic journal entries for the simulation mode:
// creation dates spread three days apart ending at the fixed base date, sites
// cycling through the itinerary, uuids freshly generated. Slot order equals
// generation order, which makes the strip easy to eyeball against the key
// help.
func DemoCollection(n int) []Entry {
	base := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	entries := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		site := demoSites[i%len(demoSites)]
		jitter := float64(i/len(demoSites)) * 0.01
		entries = append(entries, Entry{
			UUID:         uuid.NewString(),
			Type:         site.entryType,
			CreationDate: base.AddDate(0, 0, -3*(n-1-i)),
			Region:       site.region,
			Location: &Location{
				Latitude:  site.lat + jitter,
				Longitude: site.lon + jitter,
				Place:     site.place,
			},
		})
	}
	return entries
}
