package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.SetBuffers(1, 2)
	m.SetPinned(3, 4)
	m.UnpinSent()
	m.UnpinDropped()
	m.BuffersPruned(5)
	m.UploadTask("flush")
	m.ReadVersion(6)
}

func TestMetrics_Values(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "node-1")

	m.SetBuffers(3, 1024)
	m.SetPinned(7, 42)
	m.UnpinSent()
	m.UnpinSent()
	m.UnpinDropped()
	m.BuffersPruned(2)
	m.BuffersPruned(0)
	m.UploadTask("flush")
	m.UploadTask("sync")
	m.UploadTask("flush")

	cases := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"buffer epochs", m.bufferEpochs, 3},
		{"buffer bytes", m.bufferBytes, 1024},
		{"pinned id", m.pinnedVersionID, 7},
		{"max committed", m.maxCommittedEpoch, 42},
		{"unpin sent", m.unpinSent, 2},
		{"unpin dropped", m.unpinDropped, 1},
		{"pruned", m.buffersPruned, 2},
		{"flush tasks", m.uploadTasks.WithLabelValues("flush"), 2},
		{"sync tasks", m.uploadTasks.WithLabelValues("sync"), 1},
	}
	for _, tc := range cases {
		if got := testutil.ToFloat64(tc.c); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}
