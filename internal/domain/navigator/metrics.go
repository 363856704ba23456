package navigator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// proposalsTotal counts proposals.
	// Labels: outcome (candidates, empty)
	proposalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pcsguide",
		Subsystem: "navigator",
		Name:      "proposals_total",
		Help:      "Code proposals by outcome",
	}, []string{"outcome"})

	candidatesReturned = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pcsguide",
		Subsystem: "navigator",
		Name:      "candidates",
		Help:      "Number of candidate codes per proposal",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
	})

	proposeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pcsguide",
		Subsystem: "navigator",
		Name:      "propose_seconds",
		Help:      "Time spent building a proposal",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
)

func observeProposal(res *ProposeResult, elapsed time.Duration) {
	outcome := "candidates"
	if len(res.Candidates) == 0 {
		outcome = "empty"
	}
	proposalsTotal.WithLabelValues(outcome).Inc()
	candidatesReturned.Observe(float64(len(res.Candidates)))
	proposeSeconds.Observe(elapsed.Seconds())
}
