package version

import (
	"lsmversion/pkg/types"
)

// Static compaction groups known to every node.
const (
	StateDefault     types.CompactionGroupID = 2
	MaterializedView types.CompactionGroupID = 3
)

type LevelType uint8

const (
	LevelTypeNonOverlapping LevelType = iota + 1
	LevelTypeOverlapping
)

func (t LevelType) String() string {
	switch t {
	case LevelTypeNonOverlapping:
		return "non_overlapping"
	case LevelTypeOverlapping:
		return "overlapping"
	default:
		return "unspecified"
	}
}

// SSTableInfo describes one durable table referenced by a version.
type SSTableInfo struct {
	ID          uint64 `json:"id"`
	SmallestKey []byte `json:"smallest_key"`
	LargestKey  []byte `json:"largest_key"`
	FileSize    uint64 `json:"file_size"`
}

// Level is one LSM level of a compaction group.
type Level struct {
	Index  uint32        `json:"index"`
	Type   LevelType     `json:"type"`
	Tables []SSTableInfo `json:"tables"`
}

func (l Level) TotalFileSize() uint64 {
	var size uint64
	for _, t := range l.Tables {
		size += t.FileSize
	}
	return size
}

// HummockVersion is an immutable committed version descriptor: everything
// up to and including MaxCommittedEpoch is durable in Levels.
type HummockVersion struct {
	ID                types.VersionID                     `json:"id"`
	MaxCommittedEpoch types.Epoch                         `json:"max_committed_epoch"`
	SafeEpoch         types.Epoch                         `json:"safe_epoch"`
	Levels            map[types.CompactionGroupID][]Level `json:"levels"`
}

// GroupLevels returns the levels of one compaction group, nil if the group is
// absent from this version.
func (v *HummockVersion) GroupLevels(group types.CompactionGroupID) []Level {
	if v.Levels == nil {
		return nil
	}
	return v.Levels[group]
}

// Clone deep-copies the descriptor. Callers use it before handing a version
// across a package boundary so the pinned copy stays immutable.
func (v *HummockVersion) Clone() HummockVersion {
	out := HummockVersion{
		ID:                v.ID,
		MaxCommittedEpoch: v.MaxCommittedEpoch,
		SafeEpoch:         v.SafeEpoch,
	}
	if v.Levels == nil {
		return out
	}

	out.Levels = make(map[types.CompactionGroupID][]Level, len(v.Levels))
	for group, levels := range v.Levels {
		cp := make([]Level, len(levels))
		for i, l := range levels {
			cp[i] = Level{
				Index:  l.Index,
				Type:   l.Type,
				Tables: append([]SSTableInfo(nil), l.Tables...),
			}
		}
		out.Levels[group] = cp
	}
	return out
}

// New builds a descriptor with empty default-group levels.
func New(id types.VersionID, maxCommitted, safe types.Epoch, levels int) HummockVersion {
	v := HummockVersion{
		ID:                id,
		MaxCommittedEpoch: maxCommitted,
		SafeEpoch:         safe,
		Levels:            map[types.CompactionGroupID][]Level{},
	}
	group := make([]Level, 0, levels)
	for i := 0; i < levels; i++ {
		typ := LevelTypeNonOverlapping
		if i == 0 {
			typ = LevelTypeOverlapping
		}
		group = append(group, Level{Index: uint32(i), Type: typ})
	}
	v.Levels[StateDefault] = group
	return v
}
