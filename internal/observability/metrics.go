package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for harvest runs.
type Metrics struct {
	Registry          *prometheus.Registry
	PagesTotal        *prometheus.CounterVec
	RecordsTotal      *prometheus.CounterVec
	FetchDuration     prometheus.Histogram
	FetchErrorsTotal  *prometheus.CounterVec
	TokenDuration     prometheus.Histogram
	SnapshotSize      *prometheus.GaugeVec
	LastSnapshotEpoch *prometheus.GaugeVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_pages_total",
			Help: "Listing pages fetched and persisted.",
		},
		[]string{"dataset"},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_records_total",
			Help: "Raw listing records seen, by transform outcome.",
		},
		[]string{"dataset", "outcome"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvest_fetch_duration_seconds",
			Help:    "Latency of listing page requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	fetchErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_fetch_errors_total",
			Help: "Failed listing page requests by kind.",
		},
		[]string{"dataset", "kind"},
	)
	tokenDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvest_token_acquisition_seconds",
			Help:    "Time spent capturing a bearer credential.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60},
		},
	)
	snapshotSize := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "harvest_snapshot_offers",
			Help: "Offers in the most recent snapshot.",
		},
		[]string{"dataset"},
	)
	lastSnapshot := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "harvest_last_snapshot_timestamp_seconds",
			Help: "Unix time of the most recent snapshot write.",
		},
		[]string{"dataset"},
	)

	registry.MustRegister(pages, records, fetchDuration, fetchErrors, tokenDuration, snapshotSize, lastSnapshot)

	return &Metrics{
		Registry:          registry,
		PagesTotal:        pages,
		RecordsTotal:      records,
		FetchDuration:     fetchDuration,
		FetchErrorsTotal:  fetchErrors,
		TokenDuration:     tokenDuration,
		SnapshotSize:      snapshotSize,
		LastSnapshotEpoch: lastSnapshot,
	}
}

func (m *Metrics) IncPage(dataset string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(dataset).Inc()
}

// AddRecords counts records by outcome: accepted, rejected or malformed.
func (m *Metrics) AddRecords(dataset, outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.RecordsTotal.WithLabelValues(dataset, outcome).Add(float64(n))
}

func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

func (m *Metrics) IncFetchError(dataset, kind string) {
	if m == nil {
		return
	}
	m.FetchErrorsTotal.WithLabelValues(dataset, kind).Inc()
}

func (m *Metrics) ObserveToken(d time.Duration) {
	if m == nil {
		return
	}
	m.TokenDuration.Observe(d.Seconds())
}

func (m *Metrics) SetSnapshot(dataset string, size int, at time.Time) {
	if m == nil {
		return
	}
	m.SnapshotSize.WithLabelValues(dataset).Set(float64(size))
	m.LastSnapshotEpoch.WithLabelValues(dataset).Set(float64(at.Unix()))
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metrics dir %q: %w", dir, err)
		}
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
