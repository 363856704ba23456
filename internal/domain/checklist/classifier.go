package checklist

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ehr/pcsguide/internal/domain/checklist"

// Detection thresholds.
const (
	keywordWeight   = 0.25
	keywordCap      = 0.95
	strongScore     = 0.7
	strongMargin    = 0.15
	likelyScore     = 0.5
	runnerUpCeiling = 0.5
)

// RemoteScorer produces a label -> probability map for a note.
type RemoteScorer interface {
	Score(ctx context.Context, text string, labels []string) (map[string]float64, error)
}

// Classifier picks the checklist that best matches a note.
type Classifier struct {
	defs     []Definition
	patterns map[string][]*regexp.Regexp
	remote   RemoteScorer
	logger   zerolog.Logger
}

// NewClassifier creates a classifier over defs. A nil remote scorer means
// keyword scoring only.
func NewClassifier(defs []Definition, remote RemoteScorer, logger zerolog.Logger) (*Classifier, error) {
	c := &Classifier{
		defs:     defs,
		patterns: make(map[string][]*regexp.Regexp, len(defs)),
		remote:   remote,
		logger:   logger,
	}
	for _, d := range defs {
		res, err := compileKeywords(d.Keywords)
		if err != nil {
			return nil, err
		}
		c.patterns[d.ID] = res
	}
	return c, nil
}

// Definitions returns the checklists the classifier knows.
func (c *Classifier) Definitions() []Definition {
	return c.defs
}

// Labels returns the checklist ids in definition order.
func (c *Classifier) Labels() []string {
	out := make([]string, len(c.defs))
	for i, d := range c.defs {
		out[i] = d.ID
	}
	return out
}

// Title returns the display title of a checklist id.
func (c *Classifier) Title(id string) (string, bool) {
	for _, d := range c.defs {
		if d.ID == id {
			return d.Title, true
		}
	}
	return "", false
}

// Classify scores every checklist for text. The remote scorer is tried first;
// any failure falls back to the keyword heuristic.
func (c *Classifier) Classify(ctx context.Context, text string) (map[string]float64, string) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "checklist.Classifier.Classify",
		trace.WithAttributes(attribute.Int("text_len", len(text))),
	)
	defer span.End()

	labels := c.Labels()
	if c.remote != nil {
		dist, err := c.remote.Score(ctx, text, labels)
		if err == nil {
			span.SetAttributes(attribute.String("source", SourceGemini))
			return dist, SourceGemini
		}
		c.logger.Debug().Err(err).Msg("remote checklist scoring failed, using keywords")
		span.AddEvent("remote scoring failed")
	}

	dist := make(map[string]float64, len(labels))
	for _, l := range labels {
		dist[l] = keywordScore(text, c.patterns[l])
	}
	span.SetAttributes(attribute.String("source", SourceKeyword))
	return dist, SourceKeyword
}

// Detect classifies text and picks a checklist when the top score is strong
// enough. An ambiguous result has an empty label but keeps the distribution.
func (c *Classifier) Detect(ctx context.Context, text string) Detection {
	dist, source := c.Classify(ctx, text)
	d := Detection{Distribution: map[string]float64{}, Source: source}
	for _, l := range c.Labels() {
		if v, ok := dist[l]; ok {
			d.Distribution[l] = v
		}
	}
	ranked := RankLabels(c.Labels(), d.Distribution)
	if len(ranked) == 0 {
		return d
	}

	top := d.Distribution[ranked[0]]
	second := 0.0
	if len(ranked) > 1 {
		second = d.Distribution[ranked[1]]
	}
	d.Confidence = top
	if (top >= strongScore && top-second >= strongMargin) || (top >= likelyScore && second < runnerUpCeiling) {
		d.Label = ranked[0]
	}
	recordDetection(d)
	return d
}

// RankLabels orders the labels present in dist by descending score, keeping
// the order of labels for ties.
func RankLabels(labels []string, dist map[string]float64) []string {
	var out []string
	for _, l := range labels {
		if _, ok := dist[l]; ok {
			out = append(out, l)
		}
	}
	slices.SortStableFunc(out, func(a, b string) int {
		switch {
		case dist[a] > dist[b]:
			return -1
		case dist[a] < dist[b]:
			return 1
		}
		return 0
	})
	return out
}

func keywordScore(text string, patterns []*regexp.Regexp) float64 {
	t := strings.ToLower(text)
	score := 0.0
	for _, re := range patterns {
		if re.MatchString(t) {
			score += keywordWeight
		}
	}
	return min(score, keywordCap)
}
