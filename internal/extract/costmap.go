package extract

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/egx/internal/egraph"
)

// costMap is the per-class table shared by the goroutines of a parallel
// extractor. Workers only read it while a batch is evaluated; the
// coordinating goroutine writes between batches.
type costMap[V any] struct {
	m sync.Map
	n atomic.Int64
}

func (c *costMap[V]) Load(class egraph.ClassID) (V, bool) {
	v, ok := c.m.Load(class)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

func (c *costMap[V]) Store(class egraph.ClassID, v V) {
	if _, loaded := c.m.Swap(class, v); !loaded {
		c.n.Add(1)
	}
}

func (c *costMap[V]) Len() int {
	return int(c.n.Load())
}

// Range calls fn for each entry until fn returns false. Order is unspecified.
func (c *costMap[V]) Range(fn func(egraph.ClassID, V) bool) {
	c.m.Range(func(k, v any) bool {
		return fn(k.(egraph.ClassID), v.(V))
	})
}
