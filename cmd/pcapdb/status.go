package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/dirtbags/pcapdb/internal/statefile"
)

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "show the last status snapshot written by a running capture process",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "print the raw status JSON instead of a table",
		},
	},
	Action: runStatus,
}

func runStatus(c *cli.Context) error {
	path := filepath.Join(cfg.Process.StatusDir, "status")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if c.Bool("json") {
		fmt.Println(string(data))
		return nil
	}

	var snap statefile.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parsing status file: %w", err)
	}

	fmt.Printf("pcapdb status as of %s\n", snap.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Println("Threads:")
	for _, t := range snap.Threads {
		fmt.Printf("  %-20s %s\n", t.Name, t.State)
	}
	fmt.Println("Queue depths:")
	for _, name := range []string{"ready", "filled", "indexed"} {
		fmt.Printf("  %-10s %d\n", name, snap.QueueDepths[name])
	}
	return nil
}
