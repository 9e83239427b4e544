// Command recommend answers one patrol query from a trained model artifact,
// without running the HTTP service. Useful for briefings and for eyeballing a
// freshly trained model.
//
// Usage:
//
//	go run ./cmd/recommend -model model.json -day saturday -period late_night -top 10
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/riverweft/patrolcast/internal/model"
	"github.com/riverweft/patrolcast/internal/recommend"
)

func main() {
	modelPath := flag.String("model", "model.json", "trained model artifact")
	day := flag.String("day", "", "day of week (monday..sunday)")
	period := flag.String("period", "", "period of day (morning, afternoon, evening, late_night)")
	topK := flag.Int("top", 10, "number of zones to recommend")
	asJSON := flag.Bool("json", false, "emit the recommendation as JSON")
	flag.Parse()

	if *day == "" || *period == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*modelPath, *day, *period, *topK, *asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "recommend: %v\n", err)
		os.Exit(1)
	}
}

func run(modelPath, day, period string, topK int, asJSON bool) error {
	m, err := model.Load(modelPath)
	if err != nil {
		return err
	}

	w, err := recommend.ParseQuery(day, period)
	if err != nil {
		return err
	}

	eng, err := recommend.New(m, m.Grid, m.Version)
	if err != nil {
		return err
	}
	result, err := eng.Recommend(w, topK)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("Patrol recommendations for %s\n", w)
	fmt.Printf("Model %s (trained on %d, %d cells)\n\n", m.Version, m.TrainYear, result.GridSize)
	fmt.Printf("  %-5s %-18s %-24s %s\n", "Rank", "Cell", "Centroid", "Predicted")
	for _, e := range result.Entries {
		marker := "  "
		if e.Rank <= 5 {
			marker = "* "
		}
		fmt.Printf("%s%-5d %-18s %10.5f, %11.5f %9.2f\n",
			marker, e.Rank, e.Cell, e.Centroid.Lat, e.Centroid.Lon, e.Predicted)
	}
	fmt.Println("\n* top 5 priority zones")
	return nil
}
