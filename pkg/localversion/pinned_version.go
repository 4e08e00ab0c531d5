package localversion

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"lsmversion/pkg/metrics"
	"lsmversion/pkg/types"
	"lsmversion/pkg/version"
)

type iUnpinSender interface {
	// Send must not block.
	Send(id types.VersionID) error
}

// PinnedVersion is a reference counted hold on a committed version. The
// holder that releases the last reference sends the version id to the unpin
// worker, exactly once.
type PinnedVersion struct {
	version version.HummockVersion
	refs    atomic.Int32

	unpinSender iUnpinSender
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func newPinnedVersion(
	v version.HummockVersion,
	sender iUnpinSender,
	logger *slog.Logger,
	m *metrics.Metrics,
) *PinnedVersion {
	pv := &PinnedVersion{
		version:     v,
		unpinSender: sender,
		logger:      logger,
		metrics:     m,
	}
	pv.refs.Store(1)

	return pv
}

// Clone takes one more reference. Every Clone must be paired with a Release.
func (pv *PinnedVersion) Clone() *PinnedVersion {
	if pv.refs.Add(1) <= 1 {
		panic(fmt.Sprintf("pinned version %d cloned after its last release", pv.version.ID))
	}
	return pv
}

// Release drops one reference.
func (pv *PinnedVersion) Release() {
	switch refs := pv.refs.Add(-1); {
	case refs == 0:
		pv.unpin()
	case refs < 0:
		panic(fmt.Sprintf("pinned version %d released %d times too often", pv.version.ID, -refs))
	}
}

func (pv *PinnedVersion) unpin() {
	if pv.unpinSender == nil {
		return
	}
	// the worker is gone only during shutdown, nobody is left to act on it
	if err := pv.unpinSender.Send(pv.version.ID); err != nil {
		pv.logger.Debug("unpin notification dropped", "version_id", pv.version.ID, "error", err)
		pv.metrics.UnpinDropped()
		return
	}
	pv.metrics.UnpinSent()
}

func (pv *PinnedVersion) Refs() int32 {
	return pv.refs.Load()
}

func (pv *PinnedVersion) ID() types.VersionID {
	return pv.version.ID
}

// Levels returns the levels of one compaction group.
func (pv *PinnedVersion) Levels(group types.CompactionGroupID) []version.Level {
	return pv.version.GroupLevels(group)
}

// DefaultLevels resolves the state-default compaction group only.
// TODO: drop once the read path routes every table id to its compaction group.
func (pv *PinnedVersion) DefaultLevels() []version.Level {
	return pv.version.GroupLevels(version.StateDefault)
}

func (pv *PinnedVersion) MaxCommittedEpoch() types.Epoch {
	return pv.version.MaxCommittedEpoch
}

func (pv *PinnedVersion) SafeEpoch() types.Epoch {
	return pv.version.SafeEpoch
}

// Version returns a deep copy of the pinned descriptor.
func (pv *PinnedVersion) Version() version.HummockVersion {
	return pv.version.Clone()
}
