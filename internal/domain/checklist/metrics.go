package checklist

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// classificationsTotal counts checklist detections.
// Labels: source (gemini, keyword), outcome (selected, ambiguous)
var classificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pcsguide",
	Subsystem: "checklist",
	Name:      "classifications_total",
	Help:      "Checklist detections by score source and outcome",
}, []string{"source", "outcome"})

func recordDetection(d Detection) {
	outcome := "selected"
	if d.Label == "" {
		outcome = "ambiguous"
	}
	classificationsTotal.WithLabelValues(d.Source, outcome).Inc()
}
