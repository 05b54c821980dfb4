// Package config defines pcapdb's configuration surface: capture tuning,
// worker pool sizing, storage layout and the search engine's spill
// behavior, loaded from a pcapdb.kdl file in the teacher's KDL idiom.
package config

import (
	"runtime"
	"time"

	pcapdberrors "github.com/dirtbags/pcapdb/internal/errors"
)

// Config groups every tunable named in spec.md §4-6.
type Config struct {
	Capture Capture
	Workers Workers
	Storage Storage
	Catalog Catalog
	Search  Search
	Process Process
}

// Capture controls the capture stage and bucketize policy (§4.B, §4.C).
type Capture struct {
	Interfaces       []string
	BucketSizeBytes  int64
	BucketCount      int
	OutfileSizeBytes int64
	Mtu              int
}

// Workers controls pool sizing (§5). Zero means auto-detect from CPU
// count, the same convention the teacher uses for ParallelFileWorkers.
type Workers struct {
	IndexerCount   int
	WriterCount    int
	SearchPoolSize int
}

// Storage controls where capture and index files land (§6.4).
type Storage struct {
	BaseDir string
	Disks   []string

	// SlotsPerDisk bounds how many live capture slots the in-memory
	// catalog retains per disk before ReserveSlot reclaims the oldest
	// one (§6.5's retention sweep). Zero means unbounded.
	SlotsPerDisk int
}

// Catalog controls the external catalog connection (§6.5).
type Catalog struct {
	DSN string
}

// Search controls the search engine's in-memory buffer and spill
// directory (§4.H).
type Search struct {
	BufferBytes int
	SpillDir    string
}

// Process controls the single-writer lockfile and status file (§6.6).
type Process struct {
	LockPath     string
	StatusDir    string
	StatusPeriod time.Duration
}

// Default returns the configuration used when no pcapdb.kdl is found.
func Default() *Config {
	return &Config{
		Capture: Capture{
			BucketSizeBytes:  256 * 1024 * 1024,
			BucketCount:      32,
			OutfileSizeBytes: 4 * 1024 * 1024 * 1024,
			Mtu:              1500,
		},
		Workers: Workers{
			IndexerCount:   0,
			WriterCount:    0,
			SearchPoolSize: 4,
		},
		Storage: Storage{
			BaseDir: "/var/lib/pcapdb",
		},
		Search: Search{
			BufferBytes: 1 << 20, // ~1 MiB, per §4.G
			SpillDir:    "/var/lib/pcapdb/spill",
		},
		Process: Process{
			LockPath:     statefileDefaultLockPath,
			StatusDir:    "/var/lib/pcapdb",
			StatusPeriod: 5 * time.Second,
		},
	}
}

// statefileDefaultLockPath mirrors statefile.DefaultLockPath without an
// import cycle (internal/statefile does not, and should not, depend on
// internal/config).
const statefileDefaultLockPath = "/var/lock/capture"

// ResolvedIndexerCount returns Workers.IndexerCount, or the §5 default
// (1 + CPUs*3/8, minimum 1) when it is zero.
func (c *Config) ResolvedIndexerCount() int {
	return resolveWorkerCount(c.Workers.IndexerCount)
}

// ResolvedWriterCount returns Workers.WriterCount, or the §5 default.
func (c *Config) ResolvedWriterCount() int {
	return resolveWorkerCount(c.Workers.WriterCount)
}

func resolveWorkerCount(configured int) int {
	if configured > 0 {
		return configured
	}
	n := 1 + (runtime.NumCPU()*3)/8
	if n < 1 {
		n = 1
	}
	return n
}

// Validate checks every field against the ranges spec.md implies,
// aggregating all failures the way the teacher's validator does.
func (c *Config) Validate() error {
	var errs []error

	if c.Capture.BucketSizeBytes <= 0 {
		errs = append(errs, pcapdberrors.NewConfigError("capture.bucket_size_bytes", itoa64(c.Capture.BucketSizeBytes), errMustBePositive))
	}
	if c.Capture.BucketCount <= 0 {
		errs = append(errs, pcapdberrors.NewConfigError("capture.bucket_count", itoa(c.Capture.BucketCount), errMustBePositive))
	}
	if c.Capture.OutfileSizeBytes <= 0 {
		errs = append(errs, pcapdberrors.NewConfigError("capture.outfile_size_bytes", itoa64(c.Capture.OutfileSizeBytes), errMustBePositive))
	}
	if c.Capture.OutfileSizeBytes < c.Capture.BucketSizeBytes {
		errs = append(errs, pcapdberrors.NewConfigError("capture.outfile_size_bytes", itoa64(c.Capture.OutfileSizeBytes), errOutfileSmallerThanBucket))
	}
	if c.Capture.Mtu <= 0 {
		errs = append(errs, pcapdberrors.NewConfigError("capture.mtu", itoa(c.Capture.Mtu), errMustBePositive))
	}
	if c.Workers.IndexerCount < 0 {
		errs = append(errs, pcapdberrors.NewConfigError("workers.indexer_count", itoa(c.Workers.IndexerCount), errMustNotBeNegative))
	}
	if c.Workers.WriterCount < 0 {
		errs = append(errs, pcapdberrors.NewConfigError("workers.writer_count", itoa(c.Workers.WriterCount), errMustNotBeNegative))
	}
	if c.Workers.SearchPoolSize <= 0 {
		errs = append(errs, pcapdberrors.NewConfigError("workers.search_pool_size", itoa(c.Workers.SearchPoolSize), errMustBePositive))
	}
	if c.Storage.BaseDir == "" {
		errs = append(errs, pcapdberrors.NewConfigError("storage.base_dir", "", errMustNotBeEmpty))
	}
	if c.Search.BufferBytes <= 0 {
		errs = append(errs, pcapdberrors.NewConfigError("search.buffer_bytes", itoa(c.Search.BufferBytes), errMustBePositive))
	}

	me := pcapdberrors.NewMultiError(errs)
	if me.HasErrors() {
		return me
	}
	return nil
}
