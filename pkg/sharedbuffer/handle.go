package sharedbuffer

import (
	"sync"

	"lsmversion/pkg/types"
	"lsmversion/pkg/version"
)

// Handle is the shareable, lockable reference to a SharedBuffer. Readers and
// writers of the same epoch coordinate through its RWMutex.
type Handle struct {
	mu  sync.RWMutex
	buf *SharedBuffer
}

func NewHandle() *Handle {
	return &Handle{buf: New()}
}

func (h *Handle) RLock()   { h.mu.RLock() }
func (h *Handle) RUnlock() { h.mu.RUnlock() }
func (h *Handle) Lock()    { h.mu.Lock() }
func (h *Handle) Unlock()  { h.mu.Unlock() }

// Buffer returns the guarded buffer. The caller must hold the handle's lock.
func (h *Handle) Buffer() *SharedBuffer {
	return h.buf
}

func (h *Handle) WriteBatch(b *WriteBatch) (types.OrderIndex, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buf.WriteBatch(b)
}

func (h *Handle) NewUploadTask(taskType UploadTaskType) (types.OrderIndex, UploadTaskPayload, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buf.NewUploadTask(taskType)
}

func (h *Handle) SucceedUploadTask(idx types.OrderIndex, ssts []version.SSTableInfo) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buf.SucceedUploadTask(idx, ssts)
}

func (h *Handle) FailUploadTask(idx types.OrderIndex) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buf.FailUploadTask(idx)
}

// Size does not take the handle lock, so it never waits behind a reader or
// writer of this epoch.
func (h *Handle) Size() uint64 {
	return h.buf.Size()
}
