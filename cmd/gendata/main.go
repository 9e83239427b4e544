// Command gendata generates a synthetic cleaned incident CSV for one calendar
// year, in the exact batch contract the training pipeline ingests. Incidents
// cluster around persistent hot spots with a diurnal curve that leans toward
// evenings and weekend late nights, so a model trained on the output has real
// structure to find.
//
// Usage:
//
//	go run ./cmd/gendata -out data/cleaned_2023.csv -year 2023 -records 50000
//
// Pass -midnight-pile to also stamp records at exactly 00:00:00, reproducing
// the unknown-time placeholder artifact the dataset screening exists for.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"sort"
	"time"

	"github.com/riverweft/patrolcast/internal/domain"
	"github.com/riverweft/patrolcast/internal/hexgrid"
	"github.com/riverweft/patrolcast/internal/ingest"
)

var categories = []struct {
	name   string
	weight float64
}{
	{"Property_Crime", 0.40},
	{"Traffic", 0.27},
	{"Violent_Crime", 0.18},
	{"Miscellaneous", 0.15},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output CSV path")
	year := flag.Int("year", 2023, "calendar year to generate")
	records := flag.Int("records", 50000, "number of incident records")
	hotspots := flag.Int("hotspots", 6, "number of persistent hot spots")
	midnight := flag.Int("midnight-pile", 0, "extra records stamped exactly 00:00:00")
	seed := flag.Int64("seed", 7, "RNG seed")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	cfg := domain.DefaultConfig()
	r := rand.New(rand.NewSource(*seed))

	g := &generator{
		r:    r,
		cfg:  cfg,
		year: *year,
	}
	g.placeHotSpots(*hotspots)

	incidents := make([]domain.Incident, 0, *records+*midnight)
	for i := 0; i < *records; i++ {
		incidents = append(incidents, g.incident())
	}
	for i := 0; i < *midnight; i++ {
		incidents = append(incidents, g.midnightIncident())
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create %s: %w", *out, err)
	}
	defer f.Close()
	if err := ingest.Write(f, incidents); err != nil {
		return err
	}

	ix, err := hexgrid.New(cfg)
	if err != nil {
		return err
	}

	log.Printf("wrote %d records to %s", len(incidents), *out)
	printStats(ix, incidents, *midnight)
	return nil
}

type generator struct {
	r       *rand.Rand
	cfg     domain.Config
	year    int
	centers []domain.Geo
	weights []float64 // cumulative hot spot pick weights
}

// placeHotSpots scatters n persistent clusters inside the study area, away
// from the edges so jittered points stay inside. Earlier spots carry more
// weight: spot 0 is the downtown pile, the last spot barely simmers.
func (g *generator) placeHotSpots(n int) {
	area := g.cfg.StudyArea
	latSpan := area.MaxLat - area.MinLat
	lonSpan := area.MaxLon - area.MinLon

	g.centers = make([]domain.Geo, n)
	raw := make([]float64, n)
	for i := range g.centers {
		g.centers[i] = domain.Geo{
			Lat: area.MinLat + latSpan*(0.1+0.8*g.r.Float64()),
			Lon: area.MinLon + lonSpan*(0.1+0.8*g.r.Float64()),
		}
		raw[i] = 1 / float64(i+1)
	}

	var total float64
	for _, w := range raw {
		total += w
	}
	g.weights = make([]float64, n)
	var cum float64
	for i, w := range raw {
		cum += w / total
		g.weights[i] = cum
	}
}

func (g *generator) incident() domain.Incident {
	geo := g.location()
	ts := g.timestamp()
	cat := g.category()
	return domain.Incident{
		ID:        domain.GenerateIncidentID(geo.Lat, geo.Lon, ts, cat),
		Geo:       geo,
		Timestamp: ts,
		Category:  cat,
	}
}

// midnightIncident mimics records whose true time was never captured and that
// upstream systems stamp as 00:00:00 exactly.
func (g *generator) midnightIncident() domain.Incident {
	geo := g.location()
	day := g.randomDay()
	cat := g.category()
	return domain.Incident{
		ID:        domain.GenerateIncidentID(geo.Lat, geo.Lon, day, cat),
		Geo:       geo,
		Timestamp: day,
		Category:  cat,
	}
}

// location draws from a hot spot four times out of five, otherwise uniform
// background noise across the study area.
func (g *generator) location() domain.Geo {
	area := g.cfg.StudyArea
	if g.r.Float64() < 0.2 {
		return domain.Geo{
			Lat: area.MinLat + g.r.Float64()*(area.MaxLat-area.MinLat),
			Lon: area.MinLon + g.r.Float64()*(area.MaxLon-area.MinLon),
		}
	}

	pick := g.r.Float64()
	spot := len(g.centers) - 1
	for i, cum := range g.weights {
		if pick <= cum {
			spot = i
			break
		}
	}
	c := g.centers[spot]
	return domain.Geo{
		Lat: c.Lat + g.r.NormFloat64()*0.006,
		Lon: c.Lon + g.r.NormFloat64()*0.006,
	}
}

func (g *generator) timestamp() time.Time {
	day := g.randomDay()
	weekend := domain.WeekdayFromTime(day).Weekend()
	hour := g.randomHour(weekend)
	return day.Add(time.Duration(hour)*time.Hour +
		time.Duration(g.r.Intn(60))*time.Minute +
		time.Duration(g.r.Intn(60))*time.Second)
}

func (g *generator) randomDay() time.Time {
	start := time.Date(g.year, 1, 1, 0, 0, 0, 0, time.UTC)
	days := int(time.Date(g.year+1, 1, 1, 0, 0, 0, 0, time.UTC).Sub(start).Hours() / 24)
	return start.AddDate(0, 0, g.r.Intn(days))
}

// randomHour picks a period by weight, then an hour uniformly inside it.
// Weekends shift mass from mornings into late night.
func (g *generator) randomHour(weekend bool) int {
	periodWeights := [domain.NumPeriods]float64{0.20, 0.30, 0.35, 0.15}
	if weekend {
		periodWeights = [domain.NumPeriods]float64{0.10, 0.25, 0.35, 0.30}
	}

	pick := g.r.Float64()
	period := domain.LateNight
	var cum float64
	for p := domain.Morning; p <= domain.LateNight; p++ {
		cum += periodWeights[p]
		if pick <= cum {
			period = p
			break
		}
	}

	starts := g.cfg.PeriodStarts
	if period < domain.LateNight {
		span := starts[period+1] - starts[period]
		return starts[period] + g.r.Intn(span)
	}
	// LateNight wraps midnight: hours start..23 then 0..morningStart-1.
	span := (24 - starts[domain.LateNight]) + starts[domain.Morning]
	h := starts[domain.LateNight] + g.r.Intn(span)
	return h % 24
}

func (g *generator) category() string {
	pick := g.r.Float64()
	var cum float64
	for _, c := range categories {
		cum += c.weight
		if pick <= cum {
			return c.name
		}
	}
	return categories[len(categories)-1].name
}

func printStats(ix *hexgrid.Indexer, incidents []domain.Incident, midnight int) {
	byCategory := make(map[string]int)
	byHour := make(map[int]int)
	geos := make([]domain.Geo, 0, len(incidents))
	for _, inc := range incidents {
		byCategory[inc.Category]++
		byHour[inc.Timestamp.Hour()]++
		geos = append(geos, inc.Geo)
	}

	names := make([]string, 0, len(byCategory))
	for name := range byCategory {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return byCategory[names[i]] > byCategory[names[j]] })
	for _, name := range names {
		log.Printf("  %-20s %d", name, byCategory[name])
	}

	peak, peakCount := 0, 0
	for hour, n := range byHour {
		if n > peakCount {
			peak, peakCount = hour, n
		}
	}
	log.Printf("  peak hour %02d:00 with %d records", peak, peakCount)

	cells, _ := ix.Aggregate(geos)
	busiest := 0
	for _, n := range cells {
		if n > busiest {
			busiest = n
		}
	}
	log.Printf("  spread over %d cells, busiest holds %d records", len(cells), busiest)

	if midnight > 0 {
		log.Printf("  %d midnight-exact records injected", midnight)
	}
}
