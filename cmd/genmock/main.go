// Command genmock generates the mock product announcement fixture used by the
// pipeline tests, the validate command, and the feed test-message fallback.
// Announcement uuids are name-based, so regenerating the fixture is stable.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/announcements.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/storm-data-layers/internal/domain"
)

// modelRun is the issue time of every generated product.
var modelRun = time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)

type forecastDef struct {
	model, source, location string
	parameter, level        string
	offsets                 []time.Duration
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the announcement fixture")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	// Freeze the clock so the model run is reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(modelRun))
	defer domain.SetClock(nil)

	anns := generate(domain.Now())
	for i := range anns {
		if err := anns[i].Validate(); err != nil {
			return fmt.Errorf("announcement %d: %w", i, err)
		}
	}
	log.Printf("total: %d announcements", len(anns))

	if err := writeJSON(*out, anns); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote fixture: %s", *out)
	return nil
}

func generate(run time.Time) []domain.ProductAnnouncement {
	forecasts := []forecastDef{
		{"GFS", "NCEP", "global", "Temperature", "2m", hours(0, 3, 6)},
		{"GFS", "NCEP", "global", "Precipitation", "surface", hours(0, 3, 6)},
		{"GFS", "NCEP", "global", "Wind", "10m", hours(0, 3, 6)},
		{"HRRR", "NOAA", "conus", "Reflectivity", "1km", hours(1, 2)},
	}

	runMs := run.UnixMilli()
	var anns []domain.ProductAnnouncement //nolint:prealloc // size depends on forecast offsets
	for _, f := range forecasts {
		for _, off := range f.offsets {
			anns = append(anns, domain.ProductAnnouncement{
				Type:         domain.TypeForecastModel,
				ModelName:    f.model,
				ModelSource:  f.source,
				Location:     f.location,
				Parameter:    f.parameter,
				Level:        f.level,
				ForecastTime: run.Add(off).UnixMilli(),
				ModelTime:    runMs,
			})
		}
	}

	anns = append(anns,
		domain.ProductAnnouncement{Type: domain.TypeImagery, Location: "conus", Parameter: "Cloud", ModelTime: runMs, Name: "GOES-16 Cloud Top"},
		domain.ProductAnnouncement{Type: domain.TypeObservation, Location: "KTLX", Parameter: "Reflectivity", ModelTime: runMs, Name: "NEXRAD KTLX Reflectivity"},
		domain.ProductAnnouncement{Type: domain.TypeTrack, ModelTime: runMs, Name: "Storm tracks", File: "tracks.czml"},
		domain.ProductAnnouncement{Type: domain.TypeKML, ModelTime: runMs, Name: "Warnings", File: "warnings.kml"},
		domain.ProductAnnouncement{Type: domain.TypeGeoJSON, ModelTime: runMs, Name: "Storm reports", File: "reports.geojson"},
		domain.ProductAnnouncement{Type: domain.TypeSocial, ModelTime: runMs, Name: "Spotter reports"},
	)

	for i := range anns {
		anns[i].UUID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(anns[i].Identity().String())).String()
	}
	return anns
}

func hours(hs ...int) []time.Duration {
	out := make([]time.Duration, len(hs))
	for i, h := range hs {
		out[i] = time.Duration(h) * time.Hour
	}
	return out
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
