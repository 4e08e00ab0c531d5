package sharedbuffer

import (
	"bytes"
	"fmt"

	"lsmversion/pkg/dberrors"
	"lsmversion/pkg/types"

	"github.com/zhangyunhao116/skipmap"
)

// per-item bookkeeping counted towards batch size: epoch + flags
const itemOverhead = 8 + 8

type Item struct {
	Key       []byte
	Value     []byte
	Epoch     types.Epoch
	Tombstone bool
}

func (it *Item) size() uint64 {
	return uint64(len(it.Key)) + uint64(len(it.Value)) + itemOverhead
}

type itemSet = skipmap.FuncMap[[]byte, Item]

func newItemSet() *itemSet {
	return skipmap.NewFunc[[]byte, Item](func(a, b []byte) bool {
		return bytes.Compare(a, b) < 0
	})
}

// WriteBatch is an immutable, key-sorted set of writes for one epoch.
type WriteBatch struct {
	epoch types.Epoch
	items *itemSet
	size  uint64
}

// NewWriteBatch sorts items by key. A key repeated inside the batch keeps its
// last value.
func NewWriteBatch(epoch types.Epoch, items []Item) (*WriteBatch, error) {
	if len(items) == 0 {
		return nil, dberrors.ErrEmptyBatch
	}

	set := newItemSet()
	for i := range items {
		it := items[i]
		if len(it.Key) == 0 {
			return nil, fmt.Errorf("item %d has empty key: %w", i, dberrors.ErrInvalidArgument)
		}
		it.Epoch = epoch
		set.Store(it.Key, it)
	}

	b := &WriteBatch{epoch: epoch, items: set}
	set.Range(func(_ []byte, it Item) bool {
		b.size += it.size()
		return true
	})

	return b, nil
}

func (b *WriteBatch) Epoch() types.Epoch {
	return b.epoch
}

func (b *WriteBatch) Len() int {
	return b.items.Len()
}

// Size is the approximate in-memory footprint in bytes.
func (b *WriteBatch) Size() uint64 {
	return b.size
}

func (b *WriteBatch) Get(key []byte) (Item, bool) {
	return b.items.Load(key)
}

// Items returns the batch content in ascending key order.
func (b *WriteBatch) Items() []Item {
	result := make([]Item, 0, b.items.Len())
	b.items.Range(func(_ []byte, it Item) bool {
		result = append(result, it)
		return true
	})
	return result
}

// KeyRange returns the smallest and largest key in the batch.
func (b *WriteBatch) KeyRange() (smallest, largest []byte) {
	b.items.Range(func(k []byte, _ Item) bool {
		if smallest == nil {
			smallest = k
		}
		largest = k
		return true
	})
	return smallest, largest
}
