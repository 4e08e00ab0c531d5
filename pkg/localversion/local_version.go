package localversion

import (
	"fmt"
	"log/slog"
	"sync"

	"lsmversion/pkg/dberrors"
	"lsmversion/pkg/metrics"
	"lsmversion/pkg/sharedbuffer"
	"lsmversion/pkg/types"
	"lsmversion/pkg/version"

	"github.com/zhangyunhao116/skipmap"
)

type bufferMap = skipmap.FuncMap[types.Epoch, *sharedbuffer.Handle]

// LocalVersion tracks the version pinned by this node and the shared buffers
// of every epoch above its max committed epoch.
//
// Lock order is mu first, then a buffer's own lock. The read path never holds
// both: see ReadVersion.
type LocalVersion struct {
	mu            sync.RWMutex
	sharedBuffer  *bufferMap
	pinnedVersion *PinnedVersion

	unpinSender iUnpinSender
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func New(v version.HummockVersion, unpinSender iUnpinSender, opts ...Option) *LocalVersion {
	lv := &LocalVersion{
		sharedBuffer: skipmap.NewFunc[types.Epoch, *sharedbuffer.Handle](func(a, b types.Epoch) bool {
			return a < b
		}),
		unpinSender: unpinSender,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(lv)
	}

	lv.pinnedVersion = newPinnedVersion(v.Clone(), unpinSender, lv.logger, lv.metrics)
	lv.metrics.SetPinned(uint64(v.ID), uint64(v.MaxCommittedEpoch))

	return lv
}

// PinnedVersion returns the current pinned version without taking a
// reference. Use ClonePinnedVersion to keep it across a version update.
func (lv *LocalVersion) PinnedVersion() *PinnedVersion {
	lv.mu.RLock()
	defer lv.mu.RUnlock()
	return lv.pinnedVersion
}

// ClonePinnedVersion returns an owned reference; the caller must Release it.
func (lv *LocalVersion) ClonePinnedVersion() *PinnedVersion {
	lv.mu.RLock()
	defer lv.mu.RUnlock()
	return lv.pinnedVersion.Clone()
}

func (lv *LocalVersion) GetSharedBuffer(epoch types.Epoch) (*sharedbuffer.Handle, bool) {
	lv.mu.RLock()
	defer lv.mu.RUnlock()
	return lv.sharedBuffer.Load(epoch)
}

// IterSharedBuffer visits buffers in ascending epoch order while holding the
// read lock. fn must not call back into lv with a write operation.
func (lv *LocalVersion) IterSharedBuffer(fn func(epoch types.Epoch, h *sharedbuffer.Handle) bool) {
	lv.mu.RLock()
	defer lv.mu.RUnlock()
	lv.sharedBuffer.Range(fn)
}

// NewSharedBuffer returns the buffer of epoch, creating it if needed.
// Creating a buffer for an already committed epoch is a contract violation.
func (lv *LocalVersion) NewSharedBuffer(epoch types.Epoch) *sharedbuffer.Handle {
	h, created, err := lv.getOrCreate(epoch)
	if err != nil {
		panic(err.Error())
	}
	if created {
		lv.refreshBufferMetrics()
	}
	return h
}

func (lv *LocalVersion) getOrCreate(epoch types.Epoch) (*sharedbuffer.Handle, bool, error) {
	lv.mu.Lock()
	defer lv.mu.Unlock()

	if h, ok := lv.sharedBuffer.Load(epoch); ok {
		return h, false, nil
	}

	if committed := lv.pinnedVersion.MaxCommittedEpoch(); epoch <= committed {
		return nil, false, fmt.Errorf("shared buffer for epoch %d, max committed %d: %w",
			epoch, committed, dberrors.ErrEpochCommitted)
	}

	h := sharedbuffer.NewHandle()
	lv.sharedBuffer.Store(epoch, h)

	return h, true, nil
}

// WriteBatch stores items as one batch in the buffer of epoch.
func (lv *LocalVersion) WriteBatch(epoch types.Epoch, items []sharedbuffer.Item) (types.OrderIndex, error) {
	batch, err := sharedbuffer.NewWriteBatch(epoch, items)
	if err != nil {
		return 0, fmt.Errorf("failed to build write batch: %w", err)
	}

	h, _, err := lv.getOrCreate(epoch)
	if err != nil {
		return 0, err
	}

	idx, err := h.WriteBatch(batch)
	if err != nil {
		return 0, fmt.Errorf("failed to write batch: %w", err)
	}
	lv.refreshBufferMetrics()

	return idx, nil
}

// SetPinnedVersion pins v in place of the current version. When v commits
// new epochs, the buffers of those epochs are dropped: their data is durable
// in v. The previous version is released after the lock is given up, so its
// unpin fires here unless a reader still holds it.
func (lv *LocalVersion) SetPinnedVersion(v version.HummockVersion) {
	lv.mu.Lock()
	old := lv.pinnedVersion

	if v.ID == old.ID() {
		committed := old.MaxCommittedEpoch()
		lv.mu.Unlock()
		if v.MaxCommittedEpoch != committed {
			lv.logger.Warn("conflicting descriptor for pinned version ignored",
				"version_id", v.ID,
				"max_committed_epoch", v.MaxCommittedEpoch,
				"pinned_max_committed_epoch", committed,
			)
		}
		return
	}
	if v.MaxCommittedEpoch < old.MaxCommittedEpoch() {
		lv.mu.Unlock()
		panic(fmt.Sprintf("max committed epoch went backward: version %d at %d after version %d at %d",
			v.ID, v.MaxCommittedEpoch, old.ID(), old.MaxCommittedEpoch()))
	}

	pruned := 0
	if v.MaxCommittedEpoch > old.MaxCommittedEpoch() {
		pruned = lv.pruneLocked(v.MaxCommittedEpoch)
	}
	lv.pinnedVersion = newPinnedVersion(v.Clone(), lv.unpinSender, lv.logger, lv.metrics)
	lv.mu.Unlock()

	old.Release()

	lv.metrics.SetPinned(uint64(v.ID), uint64(v.MaxCommittedEpoch))
	lv.metrics.BuffersPruned(pruned)
	lv.refreshBufferMetrics()
	lv.logger.Debug("pinned version updated",
		"version_id", v.ID,
		"max_committed_epoch", v.MaxCommittedEpoch,
		"safe_epoch", v.SafeEpoch,
		"pruned_buffers", pruned,
	)
}

// pruneLocked drops every buffer with epoch <= maxCommitted.
func (lv *LocalVersion) pruneLocked(maxCommitted types.Epoch) int {
	var stale []types.Epoch
	lv.sharedBuffer.Range(func(epoch types.Epoch, _ *sharedbuffer.Handle) bool {
		if epoch > maxCommitted {
			return false
		}
		stale = append(stale, epoch)
		return true
	})

	for _, epoch := range stale {
		lv.sharedBuffer.Delete(epoch)
	}

	return len(stale)
}

// ReadVersion builds a consistent view for a read at readEpoch.
//
// The pinned version clone and the buffer handles are taken together under
// the aggregate read lock. Buffer read locks are acquired only after that
// lock is released, so a reader never holds up a version update or writers
// of other epochs. The caller must Release the result.
func (lv *LocalVersion) ReadVersion(readEpoch types.Epoch) *ReadVersion {
	pinned, epochs, handles := lv.snapshot(readEpoch)

	for _, h := range handles {
		h.RLock()
	}
	lv.metrics.ReadVersion(len(handles))

	return &ReadVersion{
		epochs:        epochs,
		sharedBuffers: handles,
		pinnedVersion: pinned,
	}
}

func (lv *LocalVersion) snapshot(readEpoch types.Epoch) (*PinnedVersion, []types.Epoch, []*sharedbuffer.Handle) {
	lv.mu.RLock()
	defer lv.mu.RUnlock()

	pinned := lv.pinnedVersion.Clone()
	committed := pinned.MaxCommittedEpoch()
	if readEpoch <= committed {
		return pinned, nil, nil
	}

	var (
		epochs  []types.Epoch
		handles []*sharedbuffer.Handle
	)
	lv.sharedBuffer.Range(func(epoch types.Epoch, h *sharedbuffer.Handle) bool {
		if epoch > readEpoch {
			return false
		}
		if epoch > committed {
			epochs = append(epochs, epoch)
			handles = append(handles, h)
		}
		return true
	})

	// newest epoch first
	for i, j := 0, len(handles)-1; i < j; i, j = i+1, j-1 {
		epochs[i], epochs[j] = epochs[j], epochs[i]
		handles[i], handles[j] = handles[j], handles[i]
	}

	return pinned, epochs, handles
}

// WithReadVersion runs fn over a read version and releases it on every exit
// path, including a panic inside fn.
func (lv *LocalVersion) WithReadVersion(readEpoch types.Epoch, fn func(*ReadVersion) error) error {
	rv := lv.ReadVersion(readEpoch)
	defer rv.Release()
	return fn(rv)
}

// NewUploadTask selects the pending batches of epoch as one upload task.
// ok is false when the epoch has no buffer or nothing is pending.
func (lv *LocalVersion) NewUploadTask(
	epoch types.Epoch,
	taskType sharedbuffer.UploadTaskType,
) (types.OrderIndex, sharedbuffer.UploadTaskPayload, bool) {
	h, ok := lv.GetSharedBuffer(epoch)
	if !ok {
		return 0, nil, false
	}

	idx, payload, ok := h.NewUploadTask(taskType)
	if ok {
		lv.metrics.UploadTask(taskType.String())
		lv.logger.Debug("upload task created",
			"epoch", epoch,
			"order_index", idx,
			"type", taskType.String(),
			"batches", len(payload),
			"bytes", payload.Size(),
		)
	}

	return idx, payload, ok
}

// SucceedUploadTask reports a persisted task. A buffer pruned in the meantime
// is not an error: its epoch is already committed.
func (lv *LocalVersion) SucceedUploadTask(epoch types.Epoch, idx types.OrderIndex, ssts []version.SSTableInfo) error {
	h, ok := lv.GetSharedBuffer(epoch)
	if !ok {
		lv.logger.Debug("upload finished for pruned buffer", "epoch", epoch, "order_index", idx)
		return nil
	}
	if err := h.SucceedUploadTask(idx, ssts); err != nil {
		return fmt.Errorf("epoch %d: %w", epoch, err)
	}
	return nil
}

// FailUploadTask returns the batches of a failed task to pending.
func (lv *LocalVersion) FailUploadTask(epoch types.Epoch, idx types.OrderIndex) error {
	h, ok := lv.GetSharedBuffer(epoch)
	if !ok {
		lv.logger.Debug("upload failed for pruned buffer", "epoch", epoch, "order_index", idx)
		return nil
	}
	if err := h.FailUploadTask(idx); err != nil {
		return fmt.Errorf("epoch %d: %w", epoch, err)
	}
	return nil
}

func (lv *LocalVersion) handles() []*sharedbuffer.Handle {
	lv.mu.RLock()
	defer lv.mu.RUnlock()

	result := make([]*sharedbuffer.Handle, 0, lv.sharedBuffer.Len())
	lv.sharedBuffer.Range(func(_ types.Epoch, h *sharedbuffer.Handle) bool {
		result = append(result, h)
		return true
	})
	return result
}

// refreshBufferMetrics must not take any buffer lock: a held ReadVersion
// with a queued writer would stall every caller behind that one epoch.
func (lv *LocalVersion) refreshBufferMetrics() {
	if lv.metrics == nil {
		return
	}

	handles := lv.handles()
	var size uint64
	for _, h := range handles {
		size += h.Size()
	}
	lv.metrics.SetBuffers(len(handles), size)
}
