package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirtbags/pcapdb/internal/fidx"
)

const sampleDescriptor = `
SRCPORT r0 80 80       # first sub-search
DSTv4 r1 10.0.0.1 10.0.0.1
AND a0 0 !1
OR final
START 1000.500000
END 2000.0
PROTO 6
PARTIAL final 00000000000000000001
FULL final 00000000000000000002 00000000000000000003
`

func TestParseDescriptorFullGrammar(t *testing.T) {
	d, err := ParseDescriptor(strings.NewReader(sampleDescriptor))
	require.NoError(t, err)

	require.Len(t, d.Ranges, 2)
	assert.Equal(t, fidx.SrcPort, d.Ranges[0].KeyType)
	assert.Equal(t, "r0", d.Ranges[0].ResultName)
	assert.Equal(t, fidx.DstV4, d.Ranges[1].KeyType)

	require.Len(t, d.Ands, 1)
	assert.Equal(t, "a0", d.Ands[0].ResultName)
	require.Len(t, d.Ands[0].Operands, 2)
	assert.Equal(t, AndOperand{SubsearchID: 0, Inverted: false}, d.Ands[0].Operands[0])
	assert.Equal(t, AndOperand{SubsearchID: 1, Inverted: true}, d.Ands[0].Operands[1])

	assert.Equal(t, "final", d.OrResultName)

	require.True(t, d.HasStart)
	assert.EqualValues(t, 1000, d.Start.Sec)
	assert.EqualValues(t, 500000, d.Start.Usec)
	require.True(t, d.HasEnd)
	assert.EqualValues(t, 2000, d.End.Sec)
	assert.EqualValues(t, 6, d.Proto)

	require.Len(t, d.Partial, 1)
	assert.Equal(t, []string{"00000000000000000001"}, d.Partial[0].IndexIDs)
	require.Len(t, d.Full, 1)
	assert.Equal(t, []string{"00000000000000000002", "00000000000000000003"}, d.Full[0].IndexIDs)
}

func TestEncodeKeyPortRoundTripsThroughCompareKeys(t *testing.T) {
	low, err := EncodeKey(fidx.SrcPort, "10")
	require.NoError(t, err)
	high, err := EncodeKey(fidx.SrcPort, "256")
	require.NoError(t, err)
	assert.Negative(t, CompareKeys(fidx.SrcPort, low, high))
}

func TestParseDescriptorRejectsUnknownDirective(t *testing.T) {
	_, err := ParseDescriptor(strings.NewReader("BOGUS foo bar"))
	assert.Error(t, err)
}
