package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_uploads_total",
		Help: "Upload attempts by terminal log status.",
	}, []string{"status"})

	dispositionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_upload_dispositions_total",
		Help: "Accepted uploads by scan status and quarantine reason.",
	}, []string{"status", "reason"})

	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "helpdesk_upload_scan_duration_seconds",
		Help:    "Duration of threat scans.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "helpdesk_upload_bytes_total",
		Help: "Bytes written to the uploads root.",
	})

	replicationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "helpdesk_replications_total",
		Help: "Replica upload attempts by outcome.",
	}, []string{"status"})
)
