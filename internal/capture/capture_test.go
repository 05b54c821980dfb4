package capture

import (
	"context"
	"testing"

	"github.com/dirtbags/pcapdb/internal/bucket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	batches [][]Frame
	idx     int
	seen    uint64
	dropped uint64
}

func (f *fakeSource) Dispatch(limit int, handler func(Frame)) (int, error) {
	if f.idx >= len(f.batches) {
		return 0, nil
	}
	batch := f.batches[f.idx]
	f.idx++
	for _, frame := range batch {
		handler(frame)
	}
	return len(batch), nil
}

func (f *fakeSource) Stats() (uint64, uint64, bool) { return f.seen, f.dropped, false }
func (f *fakeSource) Close() error                  { return nil }

func frame(payload int) Frame {
	return Frame{TSSec: 1000, TSUsec: 0, WireLen: uint32(payload), Payload: make([]byte, payload)}
}

func TestRunCapturesUntilEOF(t *testing.T) {
	pool := bucket.NewPool(4, 1<<20, 64)
	src := &fakeSource{batches: [][]Frame{
		{frame(64), frame(64), frame(64)},
	}}
	st := NewState("eth0", pool, src, 1<<20, 1500)

	err := st.Run(context.Background())
	require.NoError(t, err)

	// The partial chain is flushed to Filled on exit.
	assert.Equal(t, 1, pool.Filled.Len())
	bkt, ok := pool.Filled.Pop(bucket.NoWait)
	require.True(t, ok)
	assert.Len(t, bkt.Records, 3)
	assert.EqualValues(t, 3, bkt.Stats.CapturedPkts)
}

func TestGetBucketDropsWhenReadyEmpty(t *testing.T) {
	pool := bucket.NewPool(0, 1<<20, 64)
	src := &fakeSource{}
	st := NewState("eth0", pool, src, 1<<20, 1500)

	st.onPacket(frame(64))
	assert.EqualValues(t, 1, st.droppedPkts)
}

func TestGetBucketSealsWhenOutfileWouldOverflow(t *testing.T) {
	pool := bucket.NewPool(4, 1<<20, 64)
	src := &fakeSource{}
	// Tiny outfile so accumulated chain size eventually forces a seal;
	// each 50-byte payload costs 66 bytes of chain size (16-byte header).
	st := NewState("eth0", pool, src, 200, 100)

	st.onPacket(frame(50))
	assert.Equal(t, 0, pool.Filled.Len(), "first packet should not seal yet")

	st.onPacket(frame(50))
	assert.Equal(t, 0, pool.Filled.Len(), "second packet still fits the same chain")

	st.onPacket(frame(50))
	assert.Equal(t, 1, pool.Filled.Len(), "third packet should have sealed the first chain")
}

func TestGetBucketExtendsChainOnBucketFull(t *testing.T) {
	pool := bucket.NewPool(4, 150, 64)
	src := &fakeSource{}
	st := NewState("eth0", pool, src, 1<<20, 100)

	st.onPacket(frame(50))
	first := st.current
	st.onPacket(frame(50))

	assert.NotSame(t, first, st.current, "second packet should have moved to a new chained bucket")
	assert.Same(t, first, st.head, "head stays the original chain head")
	assert.Same(t, st.current, first.Next)
}
