// Package metrics holds the Prometheus collectors for cryptographic
// operations and the secure heap.
package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"qe2ee/internal/protocol/olm"
	"qe2ee/internal/securemem"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	fileBytesTotal    *prometheus.CounterVec
	keyImportsTotal   *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	m := &Metrics{
		registry: reg,
		operationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qe2ee",
			Name:      "olm_operations_total",
			Help:      "Primitive operations by name and result code",
		}, []string{"op", "result"}),
		operationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "qe2ee",
			Name:      "olm_operation_duration_seconds",
			Help:      "Time spent in primitive operations",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"op"}),
		fileBytesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qe2ee",
			Name:      "file_bytes_total",
			Help:      "Attachment bytes processed",
		}, []string{"direction"}),
		keyImportsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "qe2ee",
			Name:      "key_imports_total",
			Help:      "Key export imports by result",
		}, []string{"result"}),
	}
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "qe2ee",
		Name:      "secure_heap_used_bytes",
		Help:      "Bytes of the secure heap currently allocated",
	}, func() float64 { return float64(securemem.HeapStats().Used) })
	return m
}

// Observe records one operation outcome. A nil receiver is a no-op.
func (m *Metrics) Observe(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(op, ResultLabel(err)).Inc()
	m.operationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// AddFileBytes counts attachment bytes in direction "encrypt" or "decrypt".
func (m *Metrics) AddFileBytes(direction string, n int) {
	if m == nil {
		return
	}
	m.fileBytesTotal.WithLabelValues(direction).Add(float64(n))
}

// KeyImport records a key import outcome.
func (m *Metrics) KeyImport(result string) {
	if m == nil {
		return
	}
	m.keyImportsTotal.WithLabelValues(result).Inc()
}

// Registry exposes the registry for an HTTP handler or a dump.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteText writes every metric in the Prometheus text format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// ResultLabel maps an error to a low-cardinality label value.
func ResultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if code := olm.CodeOf(err); code >= 0 {
		return code.String()
	}
	return "error"
}
