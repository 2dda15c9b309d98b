package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds the Prometheus metrics of a sync run.
type Metrics struct {
	// Registry owns these metrics. Private so that tests can create as many
	// Metrics as they like.
	Registry *prometheus.Registry

	linesCreated      *prometheus.CounterVec
	duplicatesSkipped *prometheus.CounterVec
	statements        *prometheus.CounterVec
	ingestDuration    *prometheus.HistogramVec
	ingestErrors      *prometheus.CounterVec
}

// Statement events counted by RecordStatement.
const (
	StatementCreated  = "created"
	StatementReopened = "reopened"
	StatementOpening  = "opening"
)

// NewMetrics creates a dedicated registry and registers all metrics in it.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		linesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "banksync_lines_created_total",
				Help: "Statement lines created by ingestion.",
			},
			[]string{"journal"},
		),
		duplicatesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "banksync_duplicates_skipped_total",
				Help: "Feed transactions skipped because their identifier was already ingested.",
			},
			[]string{"journal"},
		),
		statements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "banksync_statements_total",
				Help: "Statements created, reopened or synthesized as opening balance.",
			},
			[]string{"journal", "event"},
		),
		ingestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "banksync_ingest_duration_seconds",
				Help:    "Duration of one journal pass of ingestion.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"journal"},
		),
		ingestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "banksync_ingest_errors_total",
				Help: "Journal passes rolled back on error.",
			},
			[]string{"journal"},
		),
	}
}

// RecordLines adds n created lines for a journal.
func (m *Metrics) RecordLines(journal string, n int) {
	m.linesCreated.WithLabelValues(journal).Add(float64(n))
}

// RecordDuplicates adds n skipped duplicates for a journal.
func (m *Metrics) RecordDuplicates(journal string, n int) {
	m.duplicatesSkipped.WithLabelValues(journal).Add(float64(n))
}

// RecordStatement counts n statements for one of the Statement* events.
func (m *Metrics) RecordStatement(journal, event string, n int) {
	m.statements.WithLabelValues(journal, event).Add(float64(n))
}

// RecordIngest records the duration of a journal pass.
func (m *Metrics) RecordIngest(journal string, d time.Duration) {
	m.ingestDuration.WithLabelValues(journal).Observe(d.Seconds())
}

// IncrIngestError counts a failed journal pass.
func (m *Metrics) IncrIngestError(journal string) {
	m.ingestErrors.WithLabelValues(journal).Inc()
}

// Summary is a point-in-time read of the counters of one journal.
type Summary struct {
	Lines      int
	Duplicates int
	Created    int
	Reopened   int
	Opening    int
	Errors     int
}

// Summary reads the current counters of a journal.
func (m *Metrics) Summary(journal string) Summary {
	return Summary{
		Lines:      int(counterValue(m.linesCreated.WithLabelValues(journal))),
		Duplicates: int(counterValue(m.duplicatesSkipped.WithLabelValues(journal))),
		Created:    int(counterValue(m.statements.WithLabelValues(journal, StatementCreated))),
		Reopened:   int(counterValue(m.statements.WithLabelValues(journal, StatementReopened))),
		Opening:    int(counterValue(m.statements.WithLabelValues(journal, StatementOpening))),
		Errors:     int(counterValue(m.ingestErrors.WithLabelValues(journal))),
	}
}

// WriteTextfile writes all metrics in the Prometheus text format, for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}

func counterValue(c prometheus.Counter) float64 {
	var out dto.Metric
	if err := c.Write(&out); err != nil {
		return 0
	}
	if out.Counter != nil && out.Counter.Value != nil {
		return *out.Counter.Value
	}
	return 0
}
