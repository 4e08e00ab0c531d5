package localversion

import (
	"sync/atomic"

	"lsmversion/pkg/sharedbuffer"
	"lsmversion/pkg/types"
)

// ReadVersion is the view of one read: a pinned version plus the read-locked
// shared buffers above its max committed epoch, newest epoch first.
//
// The buffer locks stay held until Release, so a ReadVersion must not outlive
// the read it was built for.
type ReadVersion struct {
	epochs        []types.Epoch
	sharedBuffers []*sharedbuffer.Handle
	pinnedVersion *PinnedVersion

	released atomic.Bool
}

// SharedBuffers returns the locked buffers sorted by epoch descendingly.
func (rv *ReadVersion) SharedBuffers() []*sharedbuffer.SharedBuffer {
	result := make([]*sharedbuffer.SharedBuffer, len(rv.sharedBuffers))
	for i, h := range rv.sharedBuffers {
		result[i] = h.Buffer()
	}
	return result
}

// Epochs returns the epochs of SharedBuffers, in the same order.
func (rv *ReadVersion) Epochs() []types.Epoch {
	return append([]types.Epoch(nil), rv.epochs...)
}

func (rv *ReadVersion) PinnedVersion() *PinnedVersion {
	return rv.pinnedVersion
}

// Get looks key up in the shared buffers, newest epoch first. A miss means
// the caller has to consult the pinned version's levels.
func (rv *ReadVersion) Get(key []byte) (sharedbuffer.Item, bool) {
	for _, h := range rv.sharedBuffers {
		if it, ok := h.Buffer().Get(key); ok {
			return it, true
		}
	}
	return sharedbuffer.Item{}, false
}

// Release unlocks the buffers and drops the pinned version reference.
// Calling it more than once is a no-op.
func (rv *ReadVersion) Release() {
	if !rv.released.CompareAndSwap(false, true) {
		return
	}
	for _, h := range rv.sharedBuffers {
		h.RUnlock()
	}
	rv.pinnedVersion.Release()
}
