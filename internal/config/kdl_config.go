package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL loads pcapdb.kdl from the given directory. A missing file is not
// an error: callers fall back to Default().
func LoadKDL(dir string) (*Config, error) {
	path := filepath.Join(dir, "pcapdb.kdl")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pcapdb.kdl: %w", err)
	}

	return parseKDL(string(content))
}

func parseKDL(content string) (*Config, error) {
	cfg := Default()

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pcapdb.kdl: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "capture":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "interfaces":
					cfg.Capture.Interfaces = collectStringArgs(cn)
				case "bucket_size_bytes":
					if v, ok := firstIntArg(cn); ok {
						cfg.Capture.BucketSizeBytes = int64(v)
					}
				case "bucket_count":
					if v, ok := firstIntArg(cn); ok {
						cfg.Capture.BucketCount = v
					}
				case "outfile_size_bytes":
					if v, ok := firstIntArg(cn); ok {
						cfg.Capture.OutfileSizeBytes = int64(v)
					}
				case "mtu":
					if v, ok := firstIntArg(cn); ok {
						cfg.Capture.Mtu = v
					}
				}
			}
		case "workers":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "indexer_count":
					if v, ok := firstIntArg(cn); ok {
						cfg.Workers.IndexerCount = v
					}
				case "writer_count":
					if v, ok := firstIntArg(cn); ok {
						cfg.Workers.WriterCount = v
					}
				case "search_pool_size":
					if v, ok := firstIntArg(cn); ok {
						cfg.Workers.SearchPoolSize = v
					}
				}
			}
		case "storage":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "base_dir":
					if s, ok := firstStringArg(cn); ok {
						cfg.Storage.BaseDir = s
					}
				case "disks":
					cfg.Storage.Disks = collectStringArgs(cn)
				case "slots_per_disk":
					if v, ok := firstIntArg(cn); ok {
						cfg.Storage.SlotsPerDisk = v
					}
				}
			}
		case "catalog":
			for _, cn := range n.Children {
				if nodeName(cn) == "dsn" {
					if s, ok := firstStringArg(cn); ok {
						cfg.Catalog.DSN = s
					}
				}
			}
		case "search":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "buffer_bytes":
					if v, ok := firstIntArg(cn); ok {
						cfg.Search.BufferBytes = v
					}
				case "spill_dir":
					if s, ok := firstStringArg(cn); ok {
						cfg.Search.SpillDir = s
					}
				}
			}
		case "process":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "lock_path":
					if s, ok := firstStringArg(cn); ok {
						cfg.Process.LockPath = s
					}
				case "status_dir":
					if s, ok := firstStringArg(cn); ok {
						cfg.Process.StatusDir = s
					}
				case "status_period_seconds":
					if v, ok := firstIntArg(cn); ok {
						cfg.Process.StatusPeriod = time.Duration(v) * time.Second
					}
				}
			}
		}
	}

	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
