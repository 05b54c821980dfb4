// Package pipeline wires the capture, indexer and writer stages around
// one shared bucket.Pool and drives the shutdown sequence (§4.A): stop
// capturing, drain Filled through the indexers, drain Indexed through
// the writers, then return the remaining ready buckets. It is the Go
// analogue of pcapdb_init.c's thread-spawning main loop, generalized
// from one fixed thread count per stage to the configured worker counts
// (§5).
package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dirtbags/pcapdb/internal/bucket"
	"github.com/dirtbags/pcapdb/internal/capture"
	"github.com/dirtbags/pcapdb/internal/catalog"
	"github.com/dirtbags/pcapdb/internal/config"
	"github.com/dirtbags/pcapdb/internal/debug"
	"github.com/dirtbags/pcapdb/internal/indexer"
	"github.com/dirtbags/pcapdb/internal/metrics"
	"github.com/dirtbags/pcapdb/internal/writer"
)

// Pipeline owns the bucket pool and every worker goroutine feeding off
// of it.
type Pipeline struct {
	Pool     *bucket.Pool
	Registry *metrics.Registry

	cfg     *config.Config
	cat     catalog.Catalog
	sources *capture.InterfaceTable
}

// New allocates the bucket pool and returns a Pipeline ready for Run.
// sources maps each configured interface name to the Source driving it
// (§1: the driver itself is out of scope).
func New(cfg *config.Config, cat catalog.Catalog, sources map[string]capture.Source) *Pipeline {
	pool := bucket.NewPool(cfg.Capture.BucketCount, cfg.Capture.BucketSizeBytes, estimatedRecordsPerBucket(cfg))
	return &Pipeline{
		Pool:     pool,
		Registry: metrics.NewRegistry(),
		cfg:      cfg,
		cat:      cat,
		sources:  capture.NewInterfaceTable(sources),
	}
}

// estimatedRecordsPerBucket sizes each bucket's record slice capacity
// assuming minimum-size (64 byte) frames, the worst case for record
// count per bucket.
func estimatedRecordsPerBucket(cfg *config.Config) int {
	const minFrameBytes = 64
	n := int(cfg.Capture.BucketSizeBytes / minFrameBytes)
	if n < 1 {
		n = 1
	}
	return n
}

// Run starts one capture goroutine per configured interface plus the
// configured number of indexer and writer workers, and blocks until every
// capture goroutine has returned and every stage has drained in pipeline
// order. The first capture goroutine to return (its Source at EOF, an
// error, or ctx cancelled) cancels the others. It returns the first
// capture error encountered, if any (errgroup's first-error propagation,
// the way writer.writeAllIndices fans out).
func (p *Pipeline) Run(ctx context.Context) error {
	captureCtx, stopCapture := context.WithCancel(ctx)
	defer stopCapture()

	var captureGroup errgroup.Group
	p.sources.Range(func(iface string, src capture.Source) {
		captureGroup.Go(func() error {
			defer stopCapture()
			st := capture.NewState(iface, p.Pool, src, p.cfg.Capture.OutfileSizeBytes, p.cfg.Capture.Mtu)
			return st.Run(captureCtx)
		})
	})

	var indexWG, writeWG sync.WaitGroup
	indexWG.Add(p.cfg.ResolvedIndexerCount())
	for i := 0; i < p.cfg.ResolvedIndexerCount(); i++ {
		go func() {
			defer indexWG.Done()
			indexer.Run(p.Pool)
		}()
	}

	writeStage := &writer.Stage{Catalog: p.cat, Registry: p.Registry}
	writeWG.Add(p.cfg.ResolvedWriterCount())
	for i := 0; i < p.cfg.ResolvedWriterCount(); i++ {
		go func() {
			defer writeWG.Done()
			writeStage.Run(ctx, p.Pool)
		}()
	}

	captureErr := captureGroup.Wait()

	debug.Log("PIPELINE", "capture stage done, draining filled")
	p.Pool.Filled.Close()
	indexWG.Wait()

	debug.Log("PIPELINE", "indexer stage done, draining indexed")
	p.Pool.Indexed.Close()
	writeWG.Wait()

	p.Pool.Ready.Close()
	debug.Log("PIPELINE", "writer stage done, pipeline shut down")

	return captureErr
}
