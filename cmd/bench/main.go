// Command bench drives the disk B-tree and a pebble instance through
// identical OLTP/OLAP/reporting workloads and records latency and memory
// per phase, following the teacher's main.go/main2.go sweep shape.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"btreedisk/bench"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	scale := fs.Int("scale", 100000, "number of keys to load before running workloads")
	degreesCSV := fs.String("degrees", "8,32,128", "comma-separated minimum degrees to sweep for the disk B-tree")
	outCSV := fs.String("out", "bench_results.csv", "path to write the CSV results")
	outChart := fs.String("chart", "bench_results.png", "path to write the PNG latency chart")
	dataDir := fs.String("dir", "", "base directory for engine files (defaults to a temp dir)")
	seed := fs.Int64("seed", 42, "seed for the workload RNG")
	fs.Parse(os.Args[1:])

	logger := log.New(os.Stderr, "bench: ", log.LstdFlags)

	base := *dataDir
	if base == "" {
		var err error
		base, err = os.MkdirTemp("", "btreedisk-bench-")
		must(err)
		defer os.RemoveAll(base)
	}

	degrees, err := parseDegrees(*degreesCSV)
	must(err)

	f, err := os.Create(*outCSV)
	must(err)
	w := csv.NewWriter(f)
	must(w.Write([]string{"Structure", "Config", "Operation", "LatencyNs", "MemMB", "HeapObjects"}))

	for _, t := range degrees {
		dir := filepath.Join(base, fmt.Sprintf("btree-t%d", t))
		must(os.MkdirAll(dir, 0755))
		idx, err := bench.NewBtreeIndex(dir, t)
		must(err)
		must(bench.RunSuite(w, logger, "BTreeDisk", configLabel(t), idx, *scale, *seed))
		must(idx.Close())
	}

	pebbleDir := filepath.Join(base, "pebble")
	idx, err := bench.NewPebbleIndex(pebbleDir)
	must(err)
	must(bench.RunSuite(w, logger, "Pebble", "default", idx, *scale, *seed))
	must(idx.Close())

	w.Flush()
	must(w.Error())
	must(f.Close())

	results, err := readResults(*outCSV)
	must(err)
	must(bench.PlotResults(results, *outChart))

	logger.Printf("wrote %s and %s", *outCSV, *outChart)
}

func configLabel(t int) string {
	return fmt.Sprintf("t=%d", t)
}

func parseDegrees(csvList string) ([]int, error) {
	var degrees []int
	for _, s := range strings.Split(csvList, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("bench: invalid degree %q: %w", s, err)
		}
		degrees = append(degrees, n)
	}
	return degrees, nil
}

// readResults re-parses the CSV just written so PlotResults can chart the
// full run without RunSuite needing to return its rows in memory too.
func readResults(path string) ([]bench.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	results := make([]bench.Result, 0, len(rows)-1)
	for _, row := range rows[1:] {
		latency, err := strconv.ParseInt(row[3], 10, 64)
		if err != nil {
			return nil, err
		}
		memMB, err := strconv.ParseUint(row[4], 10, 64)
		if err != nil {
			return nil, err
		}
		objects, err := strconv.ParseUint(row[5], 10, 64)
		if err != nil {
			return nil, err
		}
		results = append(results, bench.Result{
			Name:      row[0],
			Config:    row[1],
			Operation: row[2],
			LatencyNs: latency,
			MemMB:     memMB,
			Objects:   objects,
		})
	}
	return results, nil
}
