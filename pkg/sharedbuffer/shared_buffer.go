package sharedbuffer

import (
	"fmt"
	"sort"
	"sync/atomic"

	"lsmversion/pkg/clock"
	"lsmversion/pkg/dberrors"
	"lsmversion/pkg/types"
	"lsmversion/pkg/version"
)

type entry struct {
	order types.OrderIndex
	batch *WriteBatch
}

// SharedBuffer holds the not yet committed writes of one epoch.
//
// It has no lock of its own: every access goes through the owning Handle,
// shared for reads and exclusive for writes and upload bookkeeping.
type SharedBuffer struct {
	clock *clock.OrderClock

	// all three slices are kept in ascending order index
	pending   []entry
	uploading map[types.OrderIndex][]entry
	uploaded  []entry

	// tables produced by successful uploads, not yet part of a committed
	// version, ascending by the order index of the task that wrote them
	uncommitted []taskSSTs

	sealed      bool
	pendingSize uint64

	// read without the handle lock by metrics
	size atomic.Uint64
}

type taskSSTs struct {
	order types.OrderIndex
	ssts  []version.SSTableInfo
}

func New() *SharedBuffer {
	return &SharedBuffer{
		clock:     clock.NewOrder(0),
		uploading: make(map[types.OrderIndex][]entry),
	}
}

// WriteBatch appends b as pending data and returns its order index.
func (sb *SharedBuffer) WriteBatch(b *WriteBatch) (types.OrderIndex, error) {
	if b == nil || b.Len() == 0 {
		return 0, dberrors.ErrEmptyBatch
	}
	if sb.sealed {
		return 0, fmt.Errorf("write to epoch %d: %w", b.Epoch(), dberrors.ErrBufferSealed)
	}

	idx := sb.clock.Next()
	sb.pending = append(sb.pending, entry{order: idx, batch: b})
	sb.size.Add(b.Size())
	sb.pendingSize += b.Size()

	return idx, nil
}

// Get returns the newest write for key across every batch of the buffer.
func (sb *SharedBuffer) Get(key []byte) (Item, bool) {
	var (
		best  Item
		order types.OrderIndex
		found bool
	)

	visit := func(entries []entry) {
		// newest first inside one slice, so the first hit is the best of it
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			if found && e.order < order {
				return
			}
			if it, ok := e.batch.Get(key); ok {
				best, order, found = it, e.order, true
				return
			}
		}
	}

	visit(sb.pending)
	for _, entries := range sb.uploading {
		visit(entries)
	}
	visit(sb.uploaded)

	return best, found
}

// Range walks the merged content in ascending key order. For a key written by
// several batches only the newest item is visited. Tombstones are included.
func (sb *SharedBuffer) Range(fn func(Item) bool) {
	merged := newItemSet()
	for _, e := range sb.orderedEntries() {
		e.batch.items.Range(func(k []byte, it Item) bool {
			merged.Store(k, it)
			return true
		})
	}

	merged.Range(func(_ []byte, it Item) bool {
		return fn(it)
	})
}

// NewUploadTask moves every pending batch into one in-flight task. The task
// is keyed by the smallest order index it holds. A sync task seals the buffer
// even when nothing is pending.
func (sb *SharedBuffer) NewUploadTask(taskType UploadTaskType) (types.OrderIndex, UploadTaskPayload, bool) {
	if taskType == TaskTypeSyncEpoch {
		sb.sealed = true
	}
	if len(sb.pending) == 0 {
		return 0, nil, false
	}

	task := sb.pending
	sb.pending = nil
	sb.pendingSize = 0

	idx := task[0].order
	sb.uploading[idx] = task

	payload := make(UploadTaskPayload, len(task))
	for i, e := range task {
		payload[i] = e.batch
	}

	return idx, payload, true
}

// SucceedUploadTask records the tables persisted by the task. The batches
// stay readable until the epoch is committed and the buffer pruned.
func (sb *SharedBuffer) SucceedUploadTask(idx types.OrderIndex, ssts []version.SSTableInfo) error {
	task, ok := sb.uploading[idx]
	if !ok {
		return fmt.Errorf("succeed task %d: %w", idx, dberrors.ErrUnknownTask)
	}
	delete(sb.uploading, idx)

	sb.uploaded = mergeEntries(sb.uploaded, task)
	// a retried task may finish after a younger one
	pos := sort.Search(len(sb.uncommitted), func(i int) bool { return sb.uncommitted[i].order > idx })
	sb.uncommitted = append(sb.uncommitted, taskSSTs{})
	copy(sb.uncommitted[pos+1:], sb.uncommitted[pos:])
	sb.uncommitted[pos] = taskSSTs{order: idx, ssts: ssts}

	return nil
}

// FailUploadTask hands the batches of a failed task back to pending so a
// later task picks them up again.
func (sb *SharedBuffer) FailUploadTask(idx types.OrderIndex) error {
	task, ok := sb.uploading[idx]
	if !ok {
		return fmt.Errorf("fail task %d: %w", idx, dberrors.ErrUnknownTask)
	}
	delete(sb.uploading, idx)

	sb.pending = mergeEntries(sb.pending, task)
	for _, e := range task {
		sb.pendingSize += e.batch.Size()
	}

	return nil
}

func (sb *SharedBuffer) Sealed() bool {
	return sb.sealed
}

// Size is safe to call without holding the handle lock.
func (sb *SharedBuffer) Size() uint64 {
	return sb.size.Load()
}

func (sb *SharedBuffer) PendingSize() uint64 {
	return sb.pendingSize
}

// UploadingTasks returns the order indices of in-flight tasks, ascending.
func (sb *SharedBuffer) UploadingTasks() []types.OrderIndex {
	result := make([]types.OrderIndex, 0, len(sb.uploading))
	for idx := range sb.uploading {
		result = append(result, idx)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// UncommittedSSTs returns the uploaded tables ordered by the order index of
// their task, oldest first.
func (sb *SharedBuffer) UncommittedSSTs() []version.SSTableInfo {
	var result []version.SSTableInfo
	for _, t := range sb.uncommitted {
		result = append(result, t.ssts...)
	}
	return result
}

func (sb *SharedBuffer) BatchCount() int {
	n := len(sb.pending) + len(sb.uploaded)
	for _, task := range sb.uploading {
		n += len(task)
	}
	return n
}

func (sb *SharedBuffer) IsEmpty() bool {
	return sb.BatchCount() == 0
}

func (sb *SharedBuffer) orderedEntries() []entry {
	all := make([]entry, 0, sb.BatchCount())
	all = append(all, sb.uploaded...)
	for _, task := range sb.uploading {
		all = append(all, task...)
	}
	all = append(all, sb.pending...)
	sort.Slice(all, func(i, j int) bool { return all[i].order < all[j].order })
	return all
}

func mergeEntries(a, b []entry) []entry {
	out := make([]entry, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].order < b[j].order {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
