package localversion

import (
	"sync"

	"lsmversion/pkg/dberrors"
	"lsmversion/pkg/types"
	"lsmversion/pkg/version"
)

// recordingSender collects unpinned version ids.
type recordingSender struct {
	mu     sync.Mutex
	ids    []types.VersionID
	closed bool
}

func (s *recordingSender) Send(id types.VersionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return dberrors.ErrClosed
	}
	s.ids = append(s.ids, id)
	return nil
}

func (s *recordingSender) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *recordingSender) sent() []types.VersionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.VersionID(nil), s.ids...)
}

func testVersion(id types.VersionID, maxCommitted types.Epoch) version.HummockVersion {
	return version.New(id, maxCommitted, 0, 3)
}
