package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var DocumentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ragmine_documents_processed_total",
	Help: "Documents that completed a processing cycle, labelled by outcome",
}, []string{"outcome"})

var ChunksEmbedded = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ragmine_chunks_embedded_total",
	Help: "Chunks embedded and written to an engine",
})

var EngineErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ragmine_engine_errors_total",
	Help: "Engine adapter failures by engine kind",
}, []string{"engine"})

var PagesCrawled = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ragmine_pages_crawled_total",
	Help: "Pages discovered and registered by website crawls",
})

var IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "ragmine_ingest_duration_seconds",
	Help:    "Wall time of one document's processing cycle",
	Buckets: []float64{.5, 1, 2, 5, 10, 30, 60, 120},
})

var QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ragmine_query_duration_seconds",
	Help:    "Latency of retrieval queries by engine kind",
	Buckets: []float64{.05, .1, .25, .5, 1, 2, 5},
}, []string{"engine"})
