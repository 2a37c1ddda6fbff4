// Command calibrate runs the hill-climbing parameter search over a corpus
// of recorded drive logs and reports the best parameter set found.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/banshee-data/trajcal/internal/calib"
	"github.com/banshee-data/trajcal/internal/config"
	"github.com/banshee-data/trajcal/internal/corpus"
	"github.com/banshee-data/trajcal/internal/params"
	"github.com/banshee-data/trajcal/internal/report"
	"github.com/banshee-data/trajcal/internal/store"
	"github.com/banshee-data/trajcal/internal/trajectory"
	"github.com/banshee-data/trajcal/internal/version"
)

// parseCSVIntSlice parses a comma-separated list of ints
func parseCSVIntSlice(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid int '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func loadCorpus(logsCSV, loopsCSV string) (corpus.Corpus, error) {
	logs := splitCSV(logsCSV)
	if len(logs) == 0 {
		return nil, fmt.Errorf("at least one -logs entry is required")
	}
	loops, err := parseCSVIntSlice(loopsCSV)
	if err != nil {
		return nil, err
	}
	if len(loops) != len(logs) {
		return nil, fmt.Errorf("-loops needs one value per log (%d logs, %d loop counts)", len(logs), len(loops))
	}

	c := make(corpus.Corpus, 0, len(logs))
	for i, path := range logs {
		entry, err := corpus.LoadEntry(path, loops[i], "")
		if err != nil {
			return nil, fmt.Errorf("log %s: %w", path, err)
		}
		c = append(c, entry)
	}
	return c, nil
}

func loadSeeds(path string) ([]params.ParameterSet, error) {
	if path == "" {
		return nil, nil
	}
	seeds, err := params.LoadList(path)
	if err != nil {
		return nil, fmt.Errorf("seeds file %s: %w", path, err)
	}
	return seeds, nil
}

func main() {
	logsCSV := flag.String("logs", "", "Comma-separated drive log JSON files")
	loopsCSV := flag.String("loops", "", "Comma-separated expected loop counts, one per log")
	configPath := flag.String("config", "", "Search configuration JSON file (optional)")
	seedsPath := flag.String("seeds", "", "JSON file with an array of seed parameter sets (enables restart chaining via config)")
	outPath := flag.String("out", "calibrated.json", "Where to write the best parameter set")
	migrationsDir := flag.String("migrations", "migrations", "Directory with database migrations")
	saveAs := flag.String("save-as", "", "Also store the best parameter set in the database under this name")
	htmlReport := flag.String("html", "", "Write an HTML convergence report to this file (optional)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("calibrate %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.EmptySearchConfig()
	if *configPath != "" {
		loaded, err := config.LoadSearchConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	c, err := loadCorpus(*logsCSV, *loopsCSV)
	if err != nil {
		log.Fatalf("Failed to load corpus: %v", err)
	}
	log.Printf("[calibrate] loaded %d corpus entries", len(c))

	seeds, err := loadSeeds(*seedsPath)
	if err != nil {
		log.Fatalf("Failed to load seeds: %v", err)
	}

	var persister calib.Persister
	var db *store.Store
	if cfg.GetPersistOnLocalMinimum() || *saveAs != "" {
		db, err = store.Open(cfg.GetDatabasePath())
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		if err := db.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		persister = db
	}

	evaluator := calib.NewEvaluator(trajectory.NewFusionPredictor())
	optimizer := calib.New(evaluator, cfg.SearchParams(), persister)

	result, err := optimizer.Optimize(ctx, c, seeds)
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}
	log.Printf("[calibrate] best result: outcome=%s error=%.6f iterations=%d evaluations=%d",
		result.Outcome, result.Error, result.Iterations, result.Evaluations)

	if err := params.Save(result.Params, *outPath); err != nil {
		log.Fatalf("Failed to write %s: %v", *outPath, err)
	}
	log.Printf("[calibrate] wrote best parameter set to %s", *outPath)

	if *saveAs != "" {
		if err := db.SaveParameterSet(*saveAs, result.Params); err != nil {
			log.Fatalf("Failed to store parameter set %q: %v", *saveAs, err)
		}
		log.Printf("[calibrate] stored parameter set %q", *saveAs)
	}

	if *htmlReport != "" {
		f, err := os.Create(*htmlReport)
		if err != nil {
			log.Fatalf("Failed to create report file: %v", err)
		}
		defer f.Close()
		if err := report.RenderConvergenceHTML(f, []calib.Result{result}); err != nil {
			log.Fatalf("Failed to render report: %v", err)
		}
		log.Printf("[calibrate] wrote convergence report to %s", *htmlReport)
	}

	// Only write PNG output when the config names a report directory.
	if cfg.ReportDir != nil {
		path, err := report.SaveConvergencePNG(cfg.GetReportDir(), result)
		if err != nil {
			log.Fatalf("Failed to save convergence plot: %v", err)
		}
		log.Printf("[calibrate] wrote convergence plot to %s", path)
	}
}
