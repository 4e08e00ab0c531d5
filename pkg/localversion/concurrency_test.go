package localversion

import (
	"sync/atomic"
	"testing"

	"lsmversion/pkg/sharedbuffer"
	"lsmversion/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestLocalVersion_ConcurrentReadersWritersAndUpdates(t *testing.T) {
	const (
		lastEpoch = 200
		readers   = 8
	)

	sender := &recordingSender{}
	lv := New(testVersion(1, 0), sender)

	var (
		committed atomic.Uint64
		written   atomic.Uint64
	)

	eg := new(errgroup.Group)

	// writer: one batch per epoch, epochs ascending
	eg.Go(func() error {
		for e := types.Epoch(1); e <= lastEpoch; e++ {
			if _, err := lv.WriteBatch(e, []sharedbuffer.Item{{Key: []byte("k"), Value: []byte{byte(e)}}}); err != nil {
				return err
			}
			written.Store(uint64(e))
		}
		return nil
	})

	// version updater: commits whatever the writer finished, trailing behind it
	eg.Go(func() error {
		id := types.VersionID(1)
		for committed.Load() < lastEpoch {
			w := written.Load()
			if w <= committed.Load()+1 {
				continue
			}
			id++
			lv.SetPinnedVersion(testVersion(id, types.Epoch(w-1)))
			committed.Store(w - 1)
			if w == lastEpoch {
				id++
				lv.SetPinnedVersion(testVersion(id, lastEpoch))
				committed.Store(lastEpoch)
			}
		}
		return nil
	})

	for r := 0; r < readers; r++ {
		eg.Go(func() error {
			for committed.Load() < lastEpoch {
				readEpoch := types.Epoch(written.Load())
				rv := lv.ReadVersion(readEpoch)

				m := rv.PinnedVersion().MaxCommittedEpoch()
				epochs := rv.Epochs()
				for i, e := range epochs {
					assert.Greater(t, e, m, "buffer at or below max committed epoch")
					assert.LessOrEqual(t, e, readEpoch, "buffer above read epoch")
					if i > 0 {
						assert.Less(t, e, epochs[i-1], "buffers not strictly descending")
					}
				}
				// nothing is lost between commit and buffer
				if readEpoch > m {
					assert.Len(t, epochs, int(readEpoch-m), "missing buffers in (%d, %d]", m, readEpoch)
				}

				rv.Release()
			}
			return nil
		})
	}

	require.NoError(t, eg.Wait())

	// every replaced version was unpinned exactly once, the current one never
	current := lv.PinnedVersion().ID()
	seen := make(map[types.VersionID]int)
	for _, id := range sender.sent() {
		seen[id]++
	}
	for id := types.VersionID(1); id < current; id++ {
		assert.Equal(t, 1, seen[id], "version %d", id)
	}
	assert.Zero(t, seen[current])

	_, ok := lv.GetSharedBuffer(lastEpoch)
	assert.False(t, ok, "all buffers must be pruned once everything is committed")
}
