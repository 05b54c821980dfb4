package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/dirtbags/pcapdb/internal/capture"
	"github.com/dirtbags/pcapdb/internal/catalog"
	"github.com/dirtbags/pcapdb/internal/debug"
	"github.com/dirtbags/pcapdb/internal/pipeline"
	"github.com/dirtbags/pcapdb/internal/statefile"
)

var captureCommand = &cli.Command{
	Name:  "capture",
	Usage: "run the capture -> index -> write pipeline until interrupted",
	Description: `Drives the three-stage pipeline (§4.A) against one or more
sources until SIGINT/SIGTERM, then drains every in-flight bucket in
pipeline order before exiting.

Live kernel packet rings are out of this module's scope (§1); use
--replay iface=path.fcap to feed a standard pcap-format file instead.`,
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "replay",
			Usage: "iface=path.fcap pair to replay as that interface's source; may be repeated",
		},
		&cli.StringFlag{
			Name:  "catalog-dsn",
			Usage: "database/sql DSN for the catalog (postgres driver); empty uses an in-memory catalog",
		},
		&cli.StringSliceFlag{
			Name:  "disk",
			Usage: "uuid=root_path pair for the in-memory catalog's disk list (ignored with --catalog-dsn); may be repeated",
		},
	},
	Action: runCapture,
}

func runCapture(c *cli.Context) error {
	lock, err := statefile.AcquireLock(cfg.Process.LockPath)
	if err != nil {
		return fmt.Errorf("acquiring lockfile: %w", err)
	}
	defer lock.Release()

	sources, closeSources, err := buildSources(c.StringSlice("replay"))
	if err != nil {
		return err
	}
	defer closeSources()

	cat, disks, err := buildCatalog(c)
	if err != nil {
		return err
	}

	pl := pipeline.New(cfg, cat, sources)

	registry := statefile.NewRegistry(pl.Pool)
	statusWriter := statefile.NewStatusWriter(registry, cfg.Process.StatusDir, cfg.Process.StatusPeriod)
	if err := os.MkdirAll(cfg.Process.StatusDir, 0755); err != nil {
		return fmt.Errorf("creating status dir: %w", err)
	}
	go statusWriter.Run()
	defer statusWriter.Stop()

	pipelineThread := registry.Track("pipeline")
	pipelineThread.Set(statefile.ThreadWorking)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, disk := range disks {
		disk := disk
		go func() {
			if err := catalog.WatchReclaim(ctx, cat, disk.UUID, disk.Root); err != nil && ctx.Err() == nil {
				debug.Log("CATALOG", "reclaim watch on disk %s stopped: %v", disk.UUID, err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		debug.Log("CAPTURE", "received %v, shutting down", sig)
		pipelineThread.Set(statefile.ThreadShutdown)
		cancel()
	}()

	err = pl.Run(ctx)
	pipelineThread.Set(statefile.ThreadIdle)
	return err
}

// buildSources parses --replay iface=path pairs into a Source map, and
// returns a closer that shuts every opened source down.
func buildSources(replay []string) (map[string]capture.Source, func(), error) {
	sources := make(map[string]capture.Source, len(replay))
	var opened []capture.Source
	closeAll := func() {
		for _, s := range opened {
			s.Close()
		}
	}

	for _, pair := range replay {
		iface, path, ok := strings.Cut(pair, "=")
		if !ok || iface == "" || path == "" {
			closeAll()
			return nil, nil, fmt.Errorf("invalid --replay %q: want iface=path.fcap", pair)
		}
		src, err := capture.OpenFileSource(path)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sources[iface] = src
		opened = append(opened, src)
	}

	return sources, closeAll, nil
}

// buildCatalog also returns the disk list it built (empty for a
// --catalog-dsn backend, whose disks aren't locally known), so the
// caller can start one reclaim-sentinel watcher per disk root.
func buildCatalog(c *cli.Context) (catalog.Catalog, []catalog.Disk, error) {
	if dsn := c.String("catalog-dsn"); dsn != "" {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("opening catalog database: %w", err)
		}
		return catalog.NewSQLCatalog(db), nil, nil
	}

	var disks []catalog.Disk
	for _, pair := range c.StringSlice("disk") {
		uuid, root, ok := strings.Cut(pair, "=")
		if !ok || uuid == "" || root == "" {
			return nil, nil, fmt.Errorf("invalid --disk %q: want uuid=root_path", pair)
		}
		disks = append(disks, catalog.Disk{UUID: uuid, Root: root, Capacity: cfg.Storage.SlotsPerDisk})
	}
	if len(disks) == 0 {
		disks = []catalog.Disk{{UUID: "local", Root: cfg.Storage.BaseDir, Capacity: cfg.Storage.SlotsPerDisk}}
	}
	return catalog.NewMemCatalog(disks), disks, nil
}
