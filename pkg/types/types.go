package types

// Epoch is a monotonic logical timestamp identifying one write snapshot.
type Epoch uint64

// VersionID identifies a committed version issued by the version authority.
type VersionID uint64

// CompactionGroupID identifies a partition of LSM levels inside a version.
type CompactionGroupID uint64

// OrderIndex is a per-epoch sequence number. Upload tasks of one epoch
// must be applied in non-decreasing order index.
type OrderIndex uint64

// Key is an immutable byte slice type alias used for clarity.
type Key = []byte

// Value is an immutable byte slice type alias used for clarity.
type Value = []byte

// NodeID identifies a node in a cluster.
type NodeID string
