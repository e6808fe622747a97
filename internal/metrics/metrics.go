package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine lifecycle counters. Outcome labels are "success" or "fail".
var (
	EngineStartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchtower_engine_starts_total",
		Help: "Engine start attempts by result.",
	}, []string{"result"})

	EngineStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchtower_engine_stops_total",
		Help: "Engine stop attempts by result.",
	}, []string{"result"})

	PollErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchtower_poll_errors_total",
		Help: "Camera poll failures by vendor.",
	}, []string{"vendor"})

	EventsInsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watchtower_events_inserted_total",
		Help: "Motion events durably stored.",
	})

	EventsDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "watchtower_events_duplicate_total",
		Help: "Motion events skipped as duplicates.",
	})

	UploadJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchtower_upload_jobs_total",
		Help: "Video retrieval/upload jobs by result.",
	}, []string{"result"})

	FaceSearchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "watchtower_face_search_jobs_total",
		Help: "Face search jobs by result (success, fail, skipped).",
	}, []string{"result"})

	FaceSearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "watchtower_face_search_duration_seconds",
		Help:    "Wall-clock duration of remote face searches.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)
