package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	VisitsLogged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "visitorintel_visits_logged_total",
		Help: "Visits stored, by derived visit type.",
	}, []string{"visit_type"})

	EventsLogged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "visitorintel_events_logged_total",
		Help: "Behavioral events stored.",
	})

	LabelsMinted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "visitorintel_labels_minted_total",
		Help: "New visitor aliases and session labels, by kind.",
	}, []string{"kind"})

	ProbableMatches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "visitorintel_probable_matches_total",
		Help: "Visits whose best candidate reached the similarity threshold.",
	})

	PublishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "visitorintel_publish_failures_total",
		Help: "Visits that at least one downstream publisher rejected.",
	})

	// Time spent resolving aliases and scoring candidates for one visit
	ResolveLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "visitorintel_resolve_latency_seconds",
		Help:    "Latency of identity resolution per visit",
		Buckets: prometheus.DefBuckets,
	})
)

func Init() {
	prometheus.MustRegister(
		VisitsLogged,
		EventsLogged,
		LabelsMinted,
		ProbableMatches,
		PublishFailures,
		ResolveLatency,
	)
}
