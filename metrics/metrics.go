package metrics

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsfaces_ingest_runs_total",
			Help: "Total pipeline runs by final status",
		},
		[]string{"status"},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "newsfaces_ingest_duration_seconds",
			Help:    "Duration of pipeline runs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	CardsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsfaces_cards_ingested_total",
			Help: "Total person/article cards persisted",
		},
	)

	ArticlesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsfaces_articles_skipped_total",
			Help: "Articles skipped during a run by reason",
		},
		[]string{"reason"},
	)

	NamesRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsfaces_names_rejected_total",
			Help: "Extracted person names rejected by the name filter",
		},
	)

	ImageCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsfaces_image_cache_hits_total",
			Help: "Total image cache hits",
		},
	)

	ImageCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "newsfaces_image_cache_misses_total",
			Help: "Total image cache misses",
		},
	)

	ImageLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsfaces_image_lookups_total",
			Help: "Image source lookups by source and result",
		},
		[]string{"source", "result"},
	)

	BusyRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsfaces_busy_rejections_total",
			Help: "Triggers rejected because a run was in progress",
		},
		[]string{"trigger"},
	)

	Subscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "newsfaces_subscribers",
			Help: "Currently connected change-event subscribers",
		},
	)

	registerOnce sync.Once
)

// Init registriert alle Metriken beim Default-Registry.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(IngestRuns)
		prometheus.MustRegister(IngestDuration)
		prometheus.MustRegister(CardsIngested)
		prometheus.MustRegister(ArticlesSkipped)
		prometheus.MustRegister(NamesRejected)
		prometheus.MustRegister(ImageCacheHits)
		prometheus.MustRegister(ImageCacheMisses)
		prometheus.MustRegister(ImageLookups)
		prometheus.MustRegister(BusyRejections)
		prometheus.MustRegister(Subscribers)
	})
}

func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
