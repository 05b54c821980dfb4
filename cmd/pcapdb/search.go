package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/dirtbags/pcapdb/internal/oset"
	"github.com/dirtbags/pcapdb/internal/pcapout"
	"github.com/dirtbags/pcapdb/internal/search"
)

var searchCommand = &cli.Command{
	Name:  "search",
	Usage: "run a search descriptor against one or more index intervals and emit matching packets",
	Description: `Parses a search descriptor file (§6.3: one key-type range
search (FLOW, SRCv4 ... DSTPORT) or AND/OR/START/END/PROTO/PARTIAL/FULL
directive per line) and runs it against every --index-dir
given, fanning the (interval, operation) tasks out across a bounded
worker pool (§5: "thread pool pulling work from a shared queue", default
4 workers). Each interval's FIDX scan (§4.G), set algebra (§4.H) and flow
fetch (§4.I) run independently; pair --fcap entries with --index-dir by
position to also time-order that interval's matching packets (§4.J) into
--out-dir.`,
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "index-dir", Usage: "directory holding an interval's FIDX files; may be repeated for a multi-interval search", Required: true},
		&cli.StringFlag{Name: "descriptor", Usage: "path to a search descriptor file", Required: true},
		&cli.StringSliceFlag{Name: "fcap", Usage: "FCAP file for the --index-dir at the same position (required to emit that interval's packets); pass \"\" to skip an interval"},
		&cli.StringFlag{Name: "out-dir", Usage: "directory matching --fcap's pcaps are written into, one per --index-dir", Value: "."},
		&cli.IntFlag{Name: "workers", Usage: "search worker pool size (defaults to workers.search_pool_size from pcapdb.kdl)"},
	},
	Action: runSearch,
}

func runSearch(c *cli.Context) error {
	descFile, err := os.Open(c.String("descriptor"))
	if err != nil {
		return fmt.Errorf("opening descriptor: %w", err)
	}
	defer descFile.Close()

	desc, err := search.ParseDescriptor(descFile)
	if err != nil {
		return fmt.Errorf("parsing descriptor: %w", err)
	}

	indexDirs := c.StringSlice("index-dir")
	tasks := make([]search.Task, len(indexDirs))
	for i, dir := range indexDirs {
		tasks[i] = search.Task{IndexDir: dir, Descriptor: desc}
	}

	workers := c.Int("workers")
	if workers <= 0 {
		workers = cfg.Workers.SearchPoolSize
	}
	pool := search.NewPool(workers)
	results := pool.Run(c.Context, tasks)

	fcaps := c.StringSlice("fcap")
	outDir := c.String("out-dir")
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return fmt.Errorf("creating out-dir: %w", err)
		}
	}

	var firstErr error
	for i, res := range results {
		if res.Err != nil {
			fmt.Fprintf(os.Stderr, "search: %s: %v\n", res.Task.IndexDir, res.Err)
			if firstErr == nil {
				firstErr = res.Err
			}
			continue
		}

		if _, err := os.Stat(res.FlowsPath); err != nil {
			fmt.Fprintf(os.Stderr, "search: %s: descriptor has no OR directive; no flows fetched\n", res.Task.IndexDir)
			continue
		}

		var fcapPath string
		if i < len(fcaps) {
			fcapPath = fcaps[i]
		}
		if fcapPath == "" {
			fmt.Printf("search: %s: flow result written to %s (pass --fcap to emit a pcap)\n", res.Task.IndexDir, res.FlowsPath)
			continue
		}

		flows, err := oset.OpenFlowSet(res.FlowsPath)
		if err != nil {
			return fmt.Errorf("opening flow result for %s: %w", res.Task.IndexDir, err)
		}

		outPath := filepath.Join(outDir, filepath.Base(res.Task.IndexDir)+".pcap")
		n, err := pcapout.Materialize(flows, fcapPath, outPath)
		flows.Close()
		if err != nil {
			return fmt.Errorf("materializing packets for %s: %w", res.Task.IndexDir, err)
		}
		fmt.Printf("search: %s: wrote %d packets to %s\n", res.Task.IndexDir, n, outPath)
	}
	return firstErr
}
