package sharedbuffer

import "lsmversion/pkg/types"

type UploadTaskType uint8

const (
	// TaskTypeFlushWriteBatch uploads whatever is pending; the epoch stays open.
	TaskTypeFlushWriteBatch UploadTaskType = iota
	// TaskTypeSyncEpoch uploads the rest of the epoch and seals the buffer.
	TaskTypeSyncEpoch
)

func (t UploadTaskType) String() string {
	switch t {
	case TaskTypeFlushWriteBatch:
		return "flush"
	case TaskTypeSyncEpoch:
		return "sync"
	default:
		return "unknown"
	}
}

// UploadTaskPayload is the set of batches owned by one upload task, in
// ascending order index.
type UploadTaskPayload []*WriteBatch

func (p UploadTaskPayload) Size() uint64 {
	var size uint64
	for _, b := range p {
		size += b.Size()
	}
	return size
}

func (p UploadTaskPayload) Epoch() types.Epoch {
	if len(p) == 0 {
		return 0
	}
	return p[0].Epoch()
}
