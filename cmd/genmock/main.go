// Command genmock writes synthetic Capital Bikeshare trip archives for local
// runs and tests. The archives mirror the quirks of the published bucket: both
// CSV layouts, macOS metadata folders, nested entries, inconsistent member
// casing, float-formatted station ids and the odd malformed coordinate.
//
// Usage:
//
//	go run ./cmd/genmock --out data/mock --rows 200
//	aws s3 cp --recursive data/mock s3://my-test-bucket/
package main

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
)

var legacyHeader = []string{
	"Duration", "Start date", "End date", "Start station number", "Start station",
	"End station number", "End station", "Bike number", "Member type",
}

var canonicalHeader = []string{
	"ride_id", "rideable_type", "started_at", "ended_at", "start_station_name",
	"start_station_id", "end_station_name", "end_station_id", "start_lat",
	"start_lng", "end_lat", "end_lng", "member_casual",
}

type station struct {
	id   int
	name string
	lat  float64
	lng  float64
}

var stations = []station{
	{31208, "M St & New Jersey Ave SE", 38.876737, -77.003900},
	{31108, "4th & M St SW", 38.876823, -77.017774},
	{31258, "Lincoln Memorial", 38.888255, -77.049437},
	{31623, "Columbus Circle / Union Station", 38.896960, -77.004930},
	{31201, "15th & P St NW", 38.909801, -77.034427},
}

// entry is one file inside a generated archive.
type entry struct {
	name string
	body func(w io.Writer) error
}

func main() {
	out := pflag.String("out", "data/mock", "directory to write archives into")
	rows := pflag.Int("rows", 100, "rows per trip CSV")
	seed := pflag.Uint64("seed", 1, "random seed for reproducible output")
	pflag.Parse()

	if err := run(*out, *rows, *seed); err != nil {
		slog.Error("genmock failed", "error", err)
		os.Exit(1)
	}
}

func run(outDir string, rows int, seed uint64) error {
	if rows < 1 {
		return fmt.Errorf("--rows must be positive, got %d", rows)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", outDir, err)
	}
	g := &generator{rng: rand.New(rand.NewPCG(seed, seed))}

	archives := map[string][]entry{
		"2010-capitalbikeshare-tripdata.zip": {
			{"2010-capitalbikeshare-tripdata.csv", g.legacy(rows, time.Date(2010, 10, 1, 0, 0, 0, 0, time.UTC))},
			{"__MACOSX/._2010-capitalbikeshare-tripdata.csv", staticBody("\x00\x05\x16\x07")},
		},
		"202101-capitalbikeshare-tripdata.zip": {
			{"202101-capitalbikeshare-tripdata.csv", g.canonical(rows, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))},
			{"extras/202101-stations.csv", staticBody("station_id,name\n31208,M St\n")},
		},
		// Reuses the January file name; the streamer must keep both.
		"202102-capitalbikeshare-tripdata.zip": {
			{"202101-capitalbikeshare-tripdata.csv", g.canonical(rows, time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC))},
		},
	}

	for name, entries := range archives {
		path := filepath.Join(outDir, name)
		if err := writeArchive(path, entries); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		slog.Info("wrote archive", "path", path, "entries", len(entries))
	}
	return nil
}

func writeArchive(path string, entries []entry) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		if err != nil {
			return err
		}
		if err := e.body(w); err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
	}
	return zw.Close()
}

func staticBody(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

type generator struct {
	rng *rand.Rand
}

func (g *generator) trip(month time.Time) (from, to station, start, end time.Time) {
	from = stations[g.rng.IntN(len(stations))]
	to = stations[g.rng.IntN(len(stations))]
	start = month.Add(time.Duration(g.rng.IntN(28*24*3600)) * time.Second)
	end = start.Add(time.Duration(120+g.rng.IntN(3600)) * time.Second)
	return from, to, start, end
}

// legacy writes the pre-2020 layout with member casing as published.
func (g *generator) legacy(rows int, month time.Time) func(io.Writer) error {
	return func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(legacyHeader); err != nil {
			return err
		}
		for i := range rows {
			from, to, start, end := g.trip(month)
			member := "Member"
			if i%3 == 0 {
				member = "Casual"
			} else if i%7 == 0 {
				member = "member"
			}
			stationID := fmt.Sprint(from.id)
			if i%5 == 0 {
				stationID += ".0"
			}
			rec := []string{
				fmt.Sprint(int(end.Sub(start).Seconds())),
				start.Format("2006-01-02 15:04:05"),
				end.Format("2006-01-02 15:04:05"),
				stationID, from.name,
				fmt.Sprint(to.id), to.name,
				fmt.Sprintf("W%05d", g.rng.IntN(100000)),
				member,
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	}
}

// canonical writes the current layout, with every tenth row carrying a
// coordinate that does not parse.
func (g *generator) canonical(rows int, month time.Time) func(io.Writer) error {
	return func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(canonicalHeader); err != nil {
			return err
		}
		rideable := []string{"classic_bike", "electric_bike", "docked_bike"}
		for i := range rows {
			from, to, start, end := g.trip(month)
			startLat := fmt.Sprintf("%.8f", from.lat+g.jitter())
			if i%10 == 9 {
				startLat = "n/a"
			}
			member := "member"
			if i%4 == 0 {
				member = "casual"
			}
			rec := []string{
				fmt.Sprintf("%016X", g.rng.Uint64()),
				rideable[g.rng.IntN(len(rideable))],
				start.Format("2006-01-02 15:04:05"),
				end.Format("2006-01-02 15:04:05"),
				from.name, fmt.Sprint(from.id),
				to.name, fmt.Sprint(to.id),
				startLat, fmt.Sprintf("%.8f", from.lng+g.jitter()),
				fmt.Sprintf("%.8f", to.lat+g.jitter()), fmt.Sprintf("%.8f", to.lng+g.jitter()),
				member,
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	}
}

func (g *generator) jitter() float64 {
	return (g.rng.Float64() - 0.5) / 1000
}
