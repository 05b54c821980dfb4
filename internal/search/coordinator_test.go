package search

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirtbags/pcapdb/internal/fidx"
	"github.com/dirtbags/pcapdb/internal/oset"
	"github.com/dirtbags/pcapdb/internal/packet"
)

// TestCoordinatorRunEndToEnd builds a small on-disk FIDX directory (a
// FLOW index plus one SRCPORT projection) and drives it through a
// descriptor with one range search, one AND, one OR, and the implicit
// flow fetch, checking the final flows file contains exactly the
// matching flow.
func TestCoordinatorRunEndToEnd(t *testing.T) {
	dir := t.TempDir()

	flowKeys := []fidx.FlowKey{
		{FirstTS: fidx.Timeval32{Sec: 10}, LastTS: fidx.Timeval32{Sec: 11}, SrcVers: packet.IPv4, DstVers: packet.IPv4, SrcPort: 443, Proto: 6, Size: 500},
		{FirstTS: fidx.Timeval32{Sec: 20}, LastTS: fidx.Timeval32{Sec: 21}, SrcVers: packet.IPv4, DstVers: packet.IPv4, SrcPort: 8080, Proto: 6, Size: 700},
	}
	flowEntries := make([]fidx.Entry, len(flowKeys))
	for i, k := range flowKeys {
		flowEntries[i] = fidx.Entry{Key: k.Marshal(), Offset: uint64(i) * 200}
	}
	require.NoError(t, fidx.WriteFile(filepath.Join(dir, "flow"), fidx.Flow, flowEntries, fidx.Timeval32{}, fidx.Timeval32{}, false))

	flowRowSize := 64 + 4
	srcportEntries := []fidx.Entry{
		{Key: portBytes(443), Offset: uint64(4096 + 0*flowRowSize)},
		{Key: portBytes(8080), Offset: uint64(4096 + 1*flowRowSize)},
	}
	require.NoError(t, fidx.WriteFile(filepath.Join(dir, "srcport"), fidx.SrcPort, srcportEntries, fidx.Timeval32{}, fidx.Timeval32{}, false))

	descriptor := `
SRCPORT r0 443 443
AND a0 0
OR final
START 0
`
	d, err := ParseDescriptor(strings.NewReader(descriptor))
	require.NoError(t, err)

	var c Coordinator
	flowsPath, err := c.Run(dir, d)
	require.NoError(t, err)

	out, err := oset.OpenFlowSet(flowsPath)
	require.NoError(t, err)
	defer out.Close()

	rec, ok := out.Pop()
	require.True(t, ok)
	assert.EqualValues(t, 443, rec.Key.SrcPort)
	assert.EqualValues(t, 0, rec.FlowOffset)

	_, ok = out.Pop()
	assert.False(t, ok)
}
