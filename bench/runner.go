package bench

import (
	"encoding/csv"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"strconv"
	"time"
)

// Result is one recorded measurement, following the teacher's BenchResult
// shape (name/config/operation/latency/memory/heap objects).
type Result struct {
	Name      string
	Config    string
	Operation string
	LatencyNs int64
	MemMB     uint64
	Objects   uint64
}

// MemoryStats mirrors the teacher's GetDetailedMem sampling.
type MemoryStats struct {
	AllocMB      uint64
	TotalAllocMB uint64
	HeapObjects  uint64
}

// SampleMemory forces a GC so the sample reflects live data rather than
// not-yet-collected garbage, then reads runtime.MemStats.
func SampleMemory() MemoryStats {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	return MemoryStats{
		AllocMB:      m.Alloc / 1024 / 1024,
		TotalAllocMB: m.TotalAlloc / 1024 / 1024,
		HeapObjects:  m.HeapObjects,
	}
}

// Record writes one Result row to w.
func Record(w *csv.Writer, res Result) error {
	return w.Write([]string{
		res.Name,
		res.Config,
		res.Operation,
		strconv.FormatInt(res.LatencyNs, 10),
		strconv.FormatUint(res.MemMB, 10),
		strconv.FormatUint(res.Objects, 10),
	})
}

// RunSuite loads n sequential keys into idx, samples its steady-state
// footprint, then drives the three workload shapes against it, recording a
// row per phase. name/config identify the backend under test in the output
// (e.g. "BTreeDisk"/"t=32", "Pebble"/"default").
func RunSuite(w *csv.Writer, logger *log.Logger, name string, config string, idx Index, n int, seed int64) error {
	logger.Printf("suite %s (%s): loading %d keys", name, config, n)
	rng := rand.New(rand.NewSource(seed))

	start := time.Now()
	for k := 0; k < n; k++ {
		if err := idx.Insert(int64(k), []byte("v")); err != nil {
			return fmt.Errorf("bench: %s: load insert %d: %w", name, k, err)
		}
	}
	insertLatency := time.Since(start).Nanoseconds() / int64(n)

	stats := SampleMemory()
	if err := Record(w, Result{name, config, "Footprint_SteadyState", insertLatency, stats.AllocMB, stats.HeapObjects}); err != nil {
		return err
	}

	for _, phase := range []struct {
		wType WorkloadType
		op    string
		ops   int
	}{
		{OLTP, "Workload_OLTP", n / 2},
		{OLAP, "Workload_OLAP", n / 2},
		{Reporting, "Workload_Range", 100},
	} {
		logger.Printf("suite %s (%s): %s", name, config, phase.op)
		start = time.Now()
		if err := ExecuteWorkload(idx, rng, phase.wType, phase.ops); err != nil {
			return fmt.Errorf("bench: %s: %s: %w", name, phase.op, err)
		}
		elapsed := time.Since(start).Nanoseconds() / int64(phase.ops)
		if err := Record(w, Result{name, config, phase.op, elapsed, SampleMemory().AllocMB, 0}); err != nil {
			return err
		}
	}
	return nil
}
