// Package metrics provides Prometheus observability for the call audit
// service: event counters incremented on the hot paths and a collector
// that queries stored totals at scrape time.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the application's prometheus registry.
var Registry = prometheus.NewRegistry()

// factory registers metrics against the custom Registry directly.
var factory = promauto.With(Registry)

// ParsesTotal counts completed file parses by detected source format.
var ParsesTotal = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "callaudit",
	Name:      "parses_total",
	Help:      "Completed file parses by detected source format",
}, []string{"format"})

// ParseFailuresTotal counts parses rejected before normalization.
var ParseFailuresTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "callaudit",
	Name:      "parse_failures_total",
	Help:      "Uploads rejected because no known format matched",
})

// RowsSkippedTotal counts data rows dropped during normalization.
var RowsSkippedTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "callaudit",
	Name:      "rows_skipped_total",
	Help:      "Data rows skipped due to unparseable fields",
})

// RecordsInsertedTotal counts call records persisted.
var RecordsInsertedTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "callaudit",
	Name:      "records_inserted_total",
	Help:      "Call records inserted into storage",
})

// DuplicatesSkippedTotal counts records deduplicated on save.
var DuplicatesSkippedTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "callaudit",
	Name:      "duplicates_skipped_total",
	Help:      "Call records skipped as duplicates of stored records",
})

// GapComputationsTotal counts gap engine runs.
var GapComputationsTotal = factory.NewCounter(prometheus.CounterOpts{
	Namespace: "callaudit",
	Name:      "gap_computations_total",
	Help:      "Per-agent gap computations performed",
})

// GapsFound observes the number of gaps reported per computation.
var GapsFound = factory.NewHistogram(prometheus.HistogramOpts{
	Namespace: "callaudit",
	Name:      "gaps_found",
	Help:      "Gaps reported per agent-day computation",
	Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
})

// UploadCounter returns the number of stored uploads.
type UploadCounter interface {
	CountUploads(ctx context.Context) (int64, error)
}

// RecordDirectionCounter returns stored call record counts by direction.
type RecordDirectionCounter interface {
	CountRecordsByDirection(ctx context.Context) (map[string]int64, error)
}

// Collector gathers storage-derived metrics at scrape time.
type Collector struct {
	uploads   UploadCounter
	records   RecordDirectionCounter
	startTime time.Time

	uploadsDesc *prometheus.Desc
	recordsDesc *prometheus.Desc
	uptimeDesc  *prometheus.Desc
}

// NewCollector creates a collector over the given store. Either provider
// may be nil if unavailable.
func NewCollector(uploads UploadCounter, records RecordDirectionCounter, startTime time.Time) *Collector {
	return &Collector{
		uploads:   uploads,
		records:   records,
		startTime: startTime,

		uploadsDesc: prometheus.NewDesc(
			"callaudit_uploads_stored",
			"Number of uploads currently stored",
			nil, nil,
		),
		recordsDesc: prometheus.NewDesc(
			"callaudit_call_records_stored",
			"Number of call records currently stored, by direction",
			[]string{"direction"}, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"callaudit_uptime_seconds",
			"Seconds since the process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.uploadsDesc
	ch <- c.recordsDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries the store at scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.uploads != nil {
		count, err := c.uploads.CountUploads(ctx)
		if err != nil {
			slog.Error("metrics: failed to count uploads", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.uploadsDesc, prometheus.GaugeValue,
				float64(count),
			)
		}
	}

	if c.records != nil {
		counts, err := c.records.CountRecordsByDirection(ctx)
		if err != nil {
			slog.Error("metrics: failed to count call records", "error", err)
		} else {
			for _, dir := range []string{"inbound", "outbound"} {
				ch <- prometheus.MustNewConstMetric(
					c.recordsDesc, prometheus.GaugeValue,
					float64(counts[dir]), dir,
				)
			}
		}
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
