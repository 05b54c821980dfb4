// Command pcapdb is the CLI entrypoint wiring the capture pipeline, the
// search engine, and process-state reporting around one pcapdb.kdl
// configuration file — the rendering of original_source indexer/pcapdb.c's
// argv-driven main() in the teacher's cmd/lci urfave/cli/v2 idiom.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	// Registers the "postgres" database/sql driver used by
	// --catalog-dsn; the catalog package itself stays driver-agnostic
	// (see internal/catalog's doc comment).
	_ "github.com/lib/pq"

	"github.com/dirtbags/pcapdb/internal/config"
	"github.com/dirtbags/pcapdb/internal/debug"
	"github.com/dirtbags/pcapdb/internal/oset"
	"github.com/dirtbags/pcapdb/internal/version"
)

var cfg *config.Config

func loadConfig(c *cli.Context) error {
	dir := c.String("config-dir")
	loaded, err := config.LoadKDL(dir)
	if err != nil {
		return fmt.Errorf("loading %s: %w", filepath.Join(dir, "pcapdb.kdl"), err)
	}
	if loaded == nil {
		loaded = config.Default()
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cfg = loaded

	// §4.H: every buffered ordered set spills to this directory once it
	// outgrows its in-memory pages.
	oset.SpillDir = cfg.Search.SpillDir
	if cfg.Search.SpillDir != "" {
		if err := os.MkdirAll(cfg.Search.SpillDir, 0755); err != nil {
			return fmt.Errorf("creating spill dir %s: %w", cfg.Search.SpillDir, err)
		}
	}

	debug.SetQuietMode(!c.Bool("debug"))
	if c.Bool("debug") {
		debug.EnableDebug = "true"
		debug.SetOutput(os.Stderr)
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:    "pcapdb",
		Usage:   "high-throughput packet capture, indexing, and search",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config-dir",
				Usage: "directory containing pcapdb.kdl",
				Value: ".",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			return loadConfig(c)
		},
		Commands: []*cli.Command{
			captureCommand,
			searchCommand,
			statusCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "pcapdb: %v\n", err)
		os.Exit(1)
	}
}
