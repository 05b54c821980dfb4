package bucket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuePushPopFIFO(t *testing.T) {
	q := NewQueue[int]()
	q.Push(1)
	q.Push(2)
	q.Push(3)

	for _, want := range []int{1, 2, 3} {
		got, ok := q.Pop(NoWait)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestQueuePopNoWaitOnEmpty(t *testing.T) {
	q := NewQueue[int]()
	_, ok := q.Pop(NoWait)
	assert.False(t, ok)
}

func TestQueuePopBlockWakesOnPush(t *testing.T) {
	q := NewQueue[int]()
	done := make(chan int, 1)
	go func() {
		v, ok := q.Pop(Block)
		if ok {
			done <- v
		} else {
			done <- -1
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(42)

	select {
	case v := <-done:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Pop(Block) never woke up")
	}
}

func TestQueueClosePreventsFurtherPush(t *testing.T) {
	q := NewQueue[int]()
	q.Close()
	q.Push(1)
	assert.Equal(t, 0, q.Len())
}

func TestQueuePopBlockReturnsFalseAfterCloseWhenDrained(t *testing.T) {
	q := NewQueue[int]()
	q.Push(1)
	q.Close()

	v, ok := q.Pop(Block)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = q.Pop(Block)
	assert.False(t, ok)
}

func TestQueuePopForceIgnoresClosed(t *testing.T) {
	q := NewQueue[int]()
	q.Push(1)
	q.Push(2)
	q.Close()

	var drained []int
	for {
		v, ok := q.Pop(Force)
		if !ok {
			break
		}
		drained = append(drained, v)
	}
	assert.Equal(t, []int{1, 2}, drained)
}

func TestQueueCloseWakesBlockedWaiters(t *testing.T) {
	q := NewQueue[int]()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(Block)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the blocked waiter")
	}
}
