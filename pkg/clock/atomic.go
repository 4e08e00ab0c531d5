package clock

import (
	"sync/atomic"

	"lsmversion/pkg/types"
)

// OrderClock hands out order indices for one shared buffer.
type OrderClock struct {
	atomic.Uint64
}

func NewOrder(init types.OrderIndex) *OrderClock {
	var oc OrderClock
	oc.Set(init)
	return &oc
}

func (oc *OrderClock) Val() types.OrderIndex {
	return types.OrderIndex(oc.Load())
}

func (oc *OrderClock) Next() types.OrderIndex {
	return types.OrderIndex(oc.Add(1))
}

func (oc *OrderClock) Set(t types.OrderIndex) {
	oc.Store(uint64(t))
}
