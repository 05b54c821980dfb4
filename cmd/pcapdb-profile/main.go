// Command pcapdb-profile drives the capture/index/write pipeline (§4.A)
// against a replayed capture file and reports CPU, memory, mutex, and
// block profiles, the way the teacher's profile_indexing and
// profile_workflow tools drove an indexing run rather than a search
// server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/dirtbags/pcapdb/internal/capture"
	"github.com/dirtbags/pcapdb/internal/catalog"
	"github.com/dirtbags/pcapdb/internal/config"
	"github.com/dirtbags/pcapdb/internal/pipeline"
)

func main() {
	replay := flag.String("replay", "", "fcap file to replay as the sole capture source")
	iface := flag.String("iface", "profile0", "interface name to attribute the replay to")
	configDir := flag.String("config-dir", "", "directory containing pcapdb.kdl (defaults to built-in defaults)")
	cpuprofile := flag.String("cpuprofile", "", "write CPU profile to file")
	memprofile := flag.String("memprofile", "", "write memory profile to file")
	mutexprofile := flag.String("mutexprofile", "", "write mutex contention profile to file")
	blockprofile := flag.String("blockprofile", "", "write blocking profile to file")
	mutexRate := flag.Int("mutexrate", 1, "mutex profiling rate (1=all, 0=off)")
	blockRate := flag.Int("blockrate", 1, "block profiling rate (1=all, 0=off)")
	flag.Parse()

	if *replay == "" {
		fmt.Fprintln(os.Stderr, "Usage: pcapdb-profile -replay=<path.fcap> [-iface=<name>] [-cpuprofile=<file>] [-memprofile=<file>] [-mutexprofile=<file>] [-blockprofile=<file>]")
		os.Exit(1)
	}

	absReplay, err := filepath.Abs(*replay)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to resolve replay path: %v\n", err)
		os.Exit(1)
	}

	if *mutexprofile != "" {
		runtime.SetMutexProfileFraction(*mutexRate)
		fmt.Fprintf(os.Stderr, "mutex profiling enabled (rate=%d)\n", *mutexRate)
	}
	if *blockprofile != "" {
		runtime.SetBlockProfileRate(*blockRate)
		fmt.Fprintf(os.Stderr, "block profiling enabled (rate=%d)\n", *blockRate)
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "failed to start CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	cfg := config.Default()
	if *configDir != "" {
		loaded, err := config.LoadKDL(*configDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		if loaded != nil {
			cfg = loaded
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	src, err := capture.OpenFileSource(absReplay)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open replay file: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	tmpDir, err := os.MkdirTemp("", "pcapdb-profile-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create scratch dir: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(tmpDir)

	cat := catalog.NewMemCatalog([]catalog.Disk{{UUID: "profile", Root: tmpDir}})
	pl := pipeline.New(cfg, cat, map[string]capture.Source{*iface: src})

	fmt.Fprintf(os.Stderr, "profiling: %s\n", absReplay)
	start := time.Now()

	if err := pl.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "pipeline error (may be partial): %v\n", err)
	}

	elapsed := time.Since(start)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := pl.Registry.Load()
	fmt.Fprintf(os.Stderr, "\nResults:\n")
	fmt.Fprintf(os.Stderr, "  Chains committed: %d\n", snap.ChainsCommitted)
	fmt.Fprintf(os.Stderr, "  Captured packets: %d\n", snap.CapturedPkts)
	fmt.Fprintf(os.Stderr, "  Dropped packets:  %d\n", snap.DroppedPkts)
	fmt.Fprintf(os.Stderr, "  Time: %v\n", elapsed)
	fmt.Fprintf(os.Stderr, "  Heap Alloc: %.2f MB\n", float64(memStats.HeapAlloc)/(1024*1024))
	fmt.Fprintf(os.Stderr, "  Total Alloc: %.2f MB\n", float64(memStats.TotalAlloc)/(1024*1024))
	fmt.Fprintf(os.Stderr, "  Sys: %.2f MB\n", float64(memStats.Sys)/(1024*1024))

	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create memory profile: %v\n", err)
		} else {
			runtime.GC()
			if err := pprof.WriteHeapProfile(f); err != nil {
				fmt.Fprintf(os.Stderr, "failed to write memory profile: %v\n", err)
			}
			f.Close()
			fmt.Fprintf(os.Stderr, "\nmemory profile written to: %s\n", *memprofile)
		}
	}

	if *mutexprofile != "" {
		f, err := os.Create(*mutexprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create mutex profile: %v\n", err)
		} else {
			if p := pprof.Lookup("mutex"); p != nil {
				p.WriteTo(f, 0)
			}
			f.Close()
			fmt.Fprintf(os.Stderr, "mutex profile written to: %s\n", *mutexprofile)
		}
	}

	if *blockprofile != "" {
		f, err := os.Create(*blockprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create block profile: %v\n", err)
		} else {
			if p := pprof.Lookup("block"); p != nil {
				p.WriteTo(f, 0)
			}
			f.Close()
			fmt.Fprintf(os.Stderr, "block profile written to: %s\n", *blockprofile)
		}
	}

	if *cpuprofile != "" {
		fmt.Fprintf(os.Stderr, "\nCPU profile written to: %s\n", *cpuprofile)
		fmt.Fprintf(os.Stderr, "Analyze with: go tool pprof -top %s\n", *cpuprofile)
	}
}
