package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OutboxEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contacthub_outbox_events_total",
			Help: "Outbox event lifecycle counter by result",
		},
		[]string{"result"}, // done|failed|dead|reclaimed|purged
	)

	SyncJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contacthub_sync_jobs_total",
			Help: "Index sync jobs by event type and result",
		},
		[]string{"type", "result"}, // CREATED|UPDATED|DELETED , ok|error
	)

	FastDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contacthub_fast_dispatch_total",
			Help: "Best-effort dispatch attempts by result",
		},
		[]string{"result"}, // ok|error
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		OutboxEventsTotal,
		SyncJobsTotal,
		FastDispatchTotal,
	)
}
