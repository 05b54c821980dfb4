package statefile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirtbags/pcapdb/internal/bucket"
)

func TestRegistryTrackReturnsSameTrackerForSameName(t *testing.T) {
	r := NewRegistry(nil)
	a := r.Track("indexer-0")
	b := r.Track("indexer-0")
	a.Set(ThreadWorking)
	assert.Equal(t, ThreadWorking, b.Get())
}

func TestRegistrySnapshotReportsThreadsAndQueueDepths(t *testing.T) {
	pool := &bucket.Pool{
		Ready:   bucket.NewQueue[*bucket.Bucket](),
		Filled:  bucket.NewQueue[*bucket.Bucket](),
		Indexed: bucket.NewQueue[*bucket.Bucket](),
	}
	pool.Ready.Push(bucket.NewBucket(1, 0, 0))
	pool.Ready.Push(bucket.NewBucket(2, 0, 0))
	pool.Filled.Push(bucket.NewBucket(3, 0, 0))

	r := NewRegistry(pool)
	r.Track("capture-eth0").Set(ThreadWorking)
	r.Track("writer-0").Set(ThreadIdle)

	snap := r.Snapshot()
	require.Len(t, snap.Threads, 2)
	assert.Equal(t, "capture-eth0", snap.Threads[0].Name)
	assert.Equal(t, ThreadWorking, snap.Threads[0].State)
	assert.Equal(t, "writer-0", snap.Threads[1].Name)

	assert.Equal(t, 2, snap.QueueDepths["ready"])
	assert.Equal(t, 1, snap.QueueDepths["filled"])
	assert.Equal(t, 0, snap.QueueDepths["indexed"])
}

func TestStatusWriterWritesAtStartAndLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(nil)
	r.Track("writer-0").Set(ThreadShutdown)

	w := NewStatusWriter(r, dir, time.Hour)
	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "status"))
		return err == nil
	}, time.Second, 5*time.Millisecond)

	w.Stop()
	<-done

	_, err := os.Stat(filepath.Join(dir, ".status"))
	assert.True(t, os.IsNotExist(err))

	data, err := os.ReadFile(filepath.Join(dir, "status"))
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	require.Len(t, snap.Threads, 1)
	assert.Equal(t, ThreadShutdown, snap.Threads[0].State)
}
