package extract

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueQueue_FIFO(t *testing.T) {
	q := newUniqueQueue[int]()
	q.Extend([]int{3, 1, 2})

	for _, want := range []int{3, 1, 2} {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := q.Pop()
	assert.False(t, ok, "pop from empty queue should return false")
}

func TestUniqueQueue_IgnoresQueuedDuplicates(t *testing.T) {
	q := newUniqueQueue[string]()
	q.Insert("a")
	q.Insert("b")
	q.Insert("a")

	assert.Equal(t, 2, q.Len())
}

func TestUniqueQueue_ReinsertAfterPop(t *testing.T) {
	q := newUniqueQueue[int]()
	q.Insert(7)
	_, _ = q.Pop()

	q.Insert(7)
	assert.Equal(t, 1, q.Len(), "popped items may be queued again")
}

func TestUniqueQueue_Drain(t *testing.T) {
	q := newUniqueQueue[int]()
	q.Extend([]int{1, 2, 3, 4, 5})

	assert.Equal(t, []int{1, 2}, q.Drain(2))
	assert.Equal(t, []int{3, 4, 5}, q.Drain(0))
	assert.Empty(t, q.Drain(10))
}

func TestBatchQueue_ConcurrentExtend(t *testing.T) {
	q := newBatchQueue[int]()
	const goroutines = 8

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			items := make([]int, 100)
			for j := range items {
				items[j] = j
			}
			q.Extend(items)
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, q.Len(), "duplicates across goroutines are collapsed")
	assert.Len(t, q.Drain(DefaultBatchSize), 100)
	assert.Equal(t, 0, q.Len())
}
