// Package metrics defines the Prometheus instruments exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRequests tracks the sync endpoint's throughput per entity and result
	SyncRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pensieve_sync_requests_total",
		Help: "Total number of sync requests handled",
	}, []string{"entity", "status"}) // status: ok, client_error, server_error

	// SyncDuration measures one entity exchange end to end, apply included
	SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pensieve_sync_duration_seconds",
		Help:    "Duration of one sync exchange in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"entity"})

	// ChangesApplied counts pushed records written to the record table
	ChangesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pensieve_changes_applied_total",
		Help: "Total number of pushed records applied",
	}, []string{"entity"})

	// ChangesReturned counts records handed back in pull responses
	ChangesReturned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pensieve_changes_returned_total",
		Help: "Total number of records returned in pull windows",
	}, []string{"entity"})

	// ConflictsReported counts client-reported conflict audits
	ConflictsReported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pensieve_conflicts_reported_total",
		Help: "Total number of conflict audits reported by clients",
	}, []string{"entity", "conflict_type"})

	// PresignRequests counts handed-out presigned upload URLs
	PresignRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pensieve_presign_requests_total",
		Help: "Total number of presigned upload URLs issued",
	})
)
