package pipeline

import (
	"context"
	"encoding/binary"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirtbags/pcapdb/internal/capture"
	"github.com/dirtbags/pcapdb/internal/catalog"
	"github.com/dirtbags/pcapdb/internal/config"
)

// fakeSource replays a fixed slice of frames once, then reports EOF
// (Dispatch returning 0, nil) like a file-backed Source would (§4.B).
type fakeSource struct {
	mu     sync.Mutex
	frames []capture.Frame
	pos    int
}

func (s *fakeSource) Dispatch(limit int, handler func(capture.Frame)) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.frames) {
		return 0, nil
	}
	n := 0
	for s.pos < len(s.frames) && n < limit {
		handler(s.frames[s.pos])
		s.pos++
		n++
	}
	return n, nil
}

func (s *fakeSource) Stats() (seen, sysDropped uint64, is32Bit bool) { return 0, 0, true }
func (s *fakeSource) Close() error                                   { return nil }

func ethHeader(ethertype uint16) []byte {
	b := make([]byte, 14)
	binary.BigEndian.PutUint16(b[12:], ethertype)
	return b
}

func udpIPv4(src, dst net.IP, srcPort, dstPort uint16) []byte {
	frame := ethHeader(0x0800)
	ip := make([]byte, 20)
	ip[0] = 0x45
	ip[9] = 17
	copy(ip[12:16], src.To4())
	copy(ip[16:20], dst.To4())
	udp := make([]byte, 8)
	binary.BigEndian.PutUint16(udp[0:], srcPort)
	binary.BigEndian.PutUint16(udp[2:], dstPort)
	return append(append(frame, ip...), udp...)
}

func TestPipelineRunsCaptureThroughWriter(t *testing.T) {
	dir := t.TempDir()

	a := net.ParseIP("10.0.0.1")
	b := net.ParseIP("10.0.0.2")
	src := &fakeSource{frames: []capture.Frame{
		{TSSec: 100, WireLen: 46, Payload: udpIPv4(a, b, 1111, 53)},
		{TSSec: 101, WireLen: 46, Payload: udpIPv4(a, b, 1111, 53)},
		{TSSec: 102, WireLen: 46, Payload: udpIPv4(a, b, 2222, 80)},
	}}

	cfg := config.Default()
	cfg.Capture.BucketCount = 2
	cfg.Capture.BucketSizeBytes = 1 << 16
	cfg.Workers.IndexerCount = 1
	cfg.Workers.WriterCount = 1

	cat := catalog.NewMemCatalog([]catalog.Disk{{UUID: "disk-a", Root: dir}})
	p := New(cfg, cat, map[string]capture.Source{"eth-test": src})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// The fake source reports EOF almost immediately; Run should return
	// well before the context timeout once capture, index and write have
	// all drained.
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(4 * time.Second):
		t.Fatal("pipeline did not shut down in time")
	}

	assert.EqualValues(t, 1, p.Registry.Load().ChainsCommitted)

	indexRoot := filepath.Join(dir, "index")
	entries, err := os.ReadDir(indexRoot)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, cat.IsReady(entries[0].Name()))
}
