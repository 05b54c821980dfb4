package config

import (
	"os"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestResolvedWorkerCountAutoDetects(t *testing.T) {
	cfg := Default()
	cfg.Workers.IndexerCount = 0
	if got := cfg.ResolvedIndexerCount(); got < 1 {
		t.Errorf("expected auto-detected indexer count >= 1, got %d", got)
	}

	cfg.Workers.IndexerCount = 7
	if got := cfg.ResolvedIndexerCount(); got != 7 {
		t.Errorf("expected configured count to win, got %d", got)
	}
}

func TestValidateCollectsMultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Capture.BucketSizeBytes = -1
	cfg.Capture.BucketCount = 0
	cfg.Workers.SearchPoolSize = 0
	cfg.Storage.BaseDir = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidateOutfileSmallerThanBucket(t *testing.T) {
	cfg := Default()
	cfg.Capture.BucketSizeBytes = 1024
	cfg.Capture.OutfileSizeBytes = 512

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when outfile is smaller than a single bucket")
	}
}

func TestLoadKDLMissingFileReturnsNil(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadKDL(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected nil config for a missing pcapdb.kdl, got %+v", cfg)
	}
}

func TestLoadKDLParsesCaptureAndStorage(t *testing.T) {
	dir := t.TempDir()
	content := `capture {
    interfaces "eth0" "eth1"
    bucket_size_bytes 1048576
    bucket_count 16
    outfile_size_bytes 4294967296
    mtu 9000
}
workers {
    indexer_count 3
    writer_count 2
    search_pool_size 8
}
storage {
    base_dir "/data/pcapdb"
    disks "disk0" "disk1"
}
catalog {
    dsn "postgres://localhost/pcapdb"
}
search {
    buffer_bytes 2097152
    spill_dir "/data/pcapdb/spill"
}
`
	if err := os.WriteFile(dir+"/pcapdb.kdl", []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadKDL(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if len(cfg.Capture.Interfaces) != 2 || cfg.Capture.Interfaces[0] != "eth0" {
		t.Errorf("unexpected interfaces: %v", cfg.Capture.Interfaces)
	}
	if cfg.Capture.BucketSizeBytes != 1048576 {
		t.Errorf("unexpected bucket size: %d", cfg.Capture.BucketSizeBytes)
	}
	if cfg.Workers.IndexerCount != 3 {
		t.Errorf("unexpected indexer count: %d", cfg.Workers.IndexerCount)
	}
	if cfg.Storage.BaseDir != "/data/pcapdb" {
		t.Errorf("unexpected base dir: %s", cfg.Storage.BaseDir)
	}
	if cfg.Catalog.DSN != "postgres://localhost/pcapdb" {
		t.Errorf("unexpected dsn: %s", cfg.Catalog.DSN)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected parsed config to validate, got %v", err)
	}
}
