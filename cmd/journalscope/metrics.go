package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	journalsDecoded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "journalscope_journals_decoded_total",
		Help: "Journals decoded, by outcome.",
	}, []string{"status"})

	recordsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journalscope_records_ingested_total",
		Help: "Records handed to the store.",
	})

	decodeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "journalscope_decode_seconds",
		Help:    "Time spent decoding one journal.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
)

func observeDecode(elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	journalsDecoded.WithLabelValues(status).Inc()
	decodeSeconds.Observe(elapsed.Seconds())
}
