package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lsmversion"

// Metrics is safe to use through a nil pointer, in which case every call is a
// no-op. Tests and tools that do not care about metrics pass nil.
type Metrics struct {
	bufferEpochs      prometheus.Gauge
	bufferBytes       prometheus.Gauge
	pinnedVersionID   prometheus.Gauge
	maxCommittedEpoch prometheus.Gauge
	unpinSent         prometheus.Counter
	unpinDropped      prometheus.Counter
	buffersPruned     prometheus.Counter
	uploadTasks       *prometheus.CounterVec
	readBuffers       prometheus.Histogram
}

func New(reg prometheus.Registerer, nodeID string) *Metrics {
	labels := prometheus.Labels{"node_id": nodeID}

	m := &Metrics{
		bufferEpochs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "shared_buffer_epochs",
			Help:        "Number of epochs with an uncommitted shared buffer",
			ConstLabels: labels,
		}),
		bufferBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "shared_buffer_bytes",
			Help:        "Approximate bytes held by uncommitted shared buffers",
			ConstLabels: labels,
		}),
		pinnedVersionID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "pinned_version_id",
			Help:        "Id of the version currently pinned by the node",
			ConstLabels: labels,
		}),
		maxCommittedEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "max_committed_epoch",
			Help:        "Max committed epoch of the pinned version",
			ConstLabels: labels,
		}),
		unpinSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "unpin_sent_total",
			Help:        "Unpin notifications queued for the unpin worker",
			ConstLabels: labels,
		}),
		unpinDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "unpin_dropped_total",
			Help:        "Unpin notifications dropped because the channel was closed",
			ConstLabels: labels,
		}),
		buffersPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "buffers_pruned_total",
			Help:        "Shared buffers removed because their epoch got committed",
			ConstLabels: labels,
		}),
		uploadTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "upload_tasks_total",
			Help:        "Upload tasks handed out, by task type",
			ConstLabels: labels,
		}, []string{"type"}),
		readBuffers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "read_version_buffers",
			Help:        "Number of shared buffers overlaid by one read version",
			Buckets:     []float64{0, 1, 2, 4, 8, 16, 32},
			ConstLabels: labels,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.bufferEpochs,
			m.bufferBytes,
			m.pinnedVersionID,
			m.maxCommittedEpoch,
			m.unpinSent,
			m.unpinDropped,
			m.buffersPruned,
			m.uploadTasks,
			m.readBuffers,
		)
	}

	return m
}

func (m *Metrics) SetBuffers(epochs int, bytes uint64) {
	if m == nil {
		return
	}
	m.bufferEpochs.Set(float64(epochs))
	m.bufferBytes.Set(float64(bytes))
}

func (m *Metrics) SetPinned(id, maxCommittedEpoch uint64) {
	if m == nil {
		return
	}
	m.pinnedVersionID.Set(float64(id))
	m.maxCommittedEpoch.Set(float64(maxCommittedEpoch))
}

func (m *Metrics) UnpinSent() {
	if m == nil {
		return
	}
	m.unpinSent.Inc()
}

func (m *Metrics) UnpinDropped() {
	if m == nil {
		return
	}
	m.unpinDropped.Inc()
}

func (m *Metrics) BuffersPruned(n int) {
	if m == nil || n == 0 {
		return
	}
	m.buffersPruned.Add(float64(n))
}

func (m *Metrics) UploadTask(taskType string) {
	if m == nil {
		return
	}
	m.uploadTasks.WithLabelValues(taskType).Inc()
}

func (m *Metrics) ReadVersion(buffers int) {
	if m == nil {
		return
	}
	m.readBuffers.Observe(float64(buffers))
}
