package localversion

import (
	"lsmversion/pkg/sharedbuffer"
	"lsmversion/pkg/types"
)

type BufferStats struct {
	Epoch          types.Epoch `json:"epoch"`
	Size           uint64      `json:"size"`
	PendingSize    uint64      `json:"pending_size"`
	Batches        int         `json:"batches"`
	UploadingTasks int         `json:"uploading_tasks"`
	Sealed         bool        `json:"sealed"`
}

type Stats struct {
	PinnedVersionID   types.VersionID `json:"pinned_version_id"`
	MaxCommittedEpoch types.Epoch     `json:"max_committed_epoch"`
	SafeEpoch         types.Epoch     `json:"safe_epoch"`
	Buffers           []BufferStats   `json:"buffers"`
}

// Stats reports the pinned version and every buffered epoch, ascending.
func (lv *LocalVersion) Stats() Stats {
	type pair struct {
		epoch types.Epoch
		h     *sharedbuffer.Handle
	}

	var (
		st     Stats
		pairs  []pair
		pinned *PinnedVersion
	)
	lv.mu.RLock()
	pinned = lv.pinnedVersion.Clone()
	lv.sharedBuffer.Range(func(epoch types.Epoch, h *sharedbuffer.Handle) bool {
		pairs = append(pairs, pair{epoch, h})
		return true
	})
	lv.mu.RUnlock()

	defer pinned.Release()
	st.PinnedVersionID = pinned.ID()
	st.MaxCommittedEpoch = pinned.MaxCommittedEpoch()
	st.SafeEpoch = pinned.SafeEpoch()

	st.Buffers = make([]BufferStats, 0, len(pairs))
	for _, p := range pairs {
		p.h.RLock()
		buf := p.h.Buffer()
		st.Buffers = append(st.Buffers, BufferStats{
			Epoch:          p.epoch,
			Size:           buf.Size(),
			PendingSize:    buf.PendingSize(),
			Batches:        buf.BatchCount(),
			UploadingTasks: len(buf.UploadingTasks()),
			Sealed:         buf.Sealed(),
		})
		p.h.RUnlock()
	}

	return st
}
