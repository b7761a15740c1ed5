// Package metrics exposes the prometheus collectors of the catalog engines.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// rawItemsProcessed counts raw items by matching outcome.
	rawItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_raw_items_processed_total",
		Help: "Total number of raw items processed by outcome",
	}, []string{"outcome"}) // outcome: matched, created, unmappable, error

	// unmappableItems counts raw items parked as unmappable by reason code.
	unmappableItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_unmappable_items_total",
		Help: "Total number of unmappable raw items by reason",
	}, []string{"reason"})

	// productMerges counts merge attempts by result.
	productMerges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_product_merges_total",
		Help: "Total number of product merges by mode and result",
	}, []string{"mode", "result"})

	// priceHistoryWrites counts price history writes by kind.
	priceHistoryWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_price_history_writes_total",
		Help: "Total number of price history writes by kind",
	}, []string{"kind"}) // kind: insert, update, unchanged

	// registryRefreshes counts registry reloads by result.
	registryRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_registry_refreshes_total",
		Help: "Total number of registry refreshes by result",
	}, []string{"result"})

	// registryEntries tracks the size of the active registry snapshot.
	registryEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "catalog_registry_entries",
		Help: "Number of entries in the active registry snapshot by type",
	}, []string{"type"})

	// jobDuration tracks batch job runtimes.
	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_job_duration_seconds",
		Help:    "Time taken by batch jobs by type",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"type"})
)

// RecordRawItem records the outcome of processing one raw item.
func RecordRawItem(outcome string) {
	rawItemsProcessed.WithLabelValues(outcome).Inc()
}

// RecordUnmappable records a raw item parked with reason.
func RecordUnmappable(reason string) {
	unmappableItems.WithLabelValues(reason).Inc()
}

// RecordMerge records one merge attempt.
func RecordMerge(mode string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	productMerges.WithLabelValues(mode, result).Inc()
}

// RecordPriceHistoryWrite records a price history write of the given kind.
func RecordPriceHistoryWrite(kind string) {
	priceHistoryWrites.WithLabelValues(kind).Inc()
}

// RecordRegistryRefresh records a registry reload and the resulting entry counts.
func RecordRegistryRefresh(err error, counts map[string]int) {
	if err != nil {
		registryRefreshes.WithLabelValues("failure").Inc()
		return
	}
	registryRefreshes.WithLabelValues("success").Inc()
	for typ, n := range counts {
		registryEntries.WithLabelValues(typ).Set(float64(n))
	}
}

// RecordJobDuration records the runtime of a batch job.
func RecordJobDuration(jobType string, d time.Duration) {
	jobDuration.WithLabelValues(jobType).Observe(d.Seconds())
}
