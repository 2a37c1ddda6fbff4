// Command evaluate scores a parameter set against recorded drive logs and
// prints per-log diagnostics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/trajcal/internal/calib"
	"github.com/banshee-data/trajcal/internal/corpus"
	"github.com/banshee-data/trajcal/internal/params"
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

func main() {
	logsCSV := flag.String("logs", "", "Comma-separated drive log JSON files")
	loopsCSV := flag.String("loops", "", "Comma-separated expected loop counts, one per log")
	paramsPath := flag.String("params", "", "Parameter set JSON file (defaults to the built-in set)")
	detailed := flag.Bool("detailed", false, "Print per-log orientation errors too")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("evaluate %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logs := splitCSV(*logsCSV)
	if len(logs) == 0 {
		log.Fatalf("At least one -logs entry is required")
	}
	loops, err := parseCSVIntSlice(*loopsCSV)
	if err != nil {
		log.Fatalf("Failed to parse -loops: %v", err)
	}
	if len(loops) != len(logs) {
		log.Fatalf("-loops needs one value per log (%d logs, %d loop counts)", len(logs), len(loops))
	}

	p := params.Default()
	if *paramsPath != "" {
		p, err = params.Load(*paramsPath)
		if err != nil {
			log.Fatalf("Failed to load parameter set: %v", err)
		}
	}

	c := make(corpus.Corpus, 0, len(logs))
	for i, path := range logs {
		entry, err := corpus.LoadEntry(path, loops[i], "")
		if err != nil {
			log.Fatalf("Failed to load log %s: %v", path, err)
		}
		c = append(c, entry)
	}

	predictor := trajectory.NewFusionPredictor()
	evaluator := calib.NewEvaluator(predictor)

	if *detailed {
		positional, orientation, err := evaluator.EvaluateDetailed(ctx, c, p)
		if err != nil {
			log.Fatalf("Evaluation failed: %v", err)
		}
		fmt.Println("log,positional_error_m,orientation_error_rad")
		for i := range positional {
			fmt.Printf("%s,%.6f,%.6f\n", logs[i], positional[i], orientation[i])
		}
		fmt.Printf("summary,mean=%.6f,stddev=%.6f\n",
			stat.Mean(positional, nil), stat.StdDev(positional, nil))
	} else {
		mean, err := evaluator.Evaluate(ctx, c, p, true)
		if err != nil {
			log.Fatalf("Evaluation failed: %v", err)
		}
		if math.IsInf(mean, 1) {
			fmt.Println("mean_error_m=+Inf (implausible heading drift)")
		} else {
			fmt.Printf("mean_error_m=%.6f\n", mean)
		}
	}
}
