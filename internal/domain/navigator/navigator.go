package navigator

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ehr/pcsguide/internal/domain/pcstables"
	"github.com/ehr/pcsguide/internal/domain/resolver"
	"github.com/ehr/pcsguide/internal/domain/rules"
)

const tracerName = "github.com/ehr/pcsguide/internal/domain/navigator"

const (
	// DefaultLimit is used when a caller asks for zero or fewer candidates.
	DefaultLimit = 25

	indexHitCap = 60
	maxPrefixes = 10
)

// Navigator turns a query and clinical facts into ranked candidate codes.
type Navigator struct {
	index     IndexSearcher
	tables    TableExpander
	engine    *rules.Engine
	devices   *resolver.DeviceResolver
	bodyParts *resolver.BodyPartResolver
	logger    zerolog.Logger
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithDeviceResolver enables synonym and aggregation matching for devices.
func WithDeviceResolver(r *resolver.DeviceResolver) Option {
	return func(n *Navigator) { n.devices = r }
}

// WithBodyPartResolver enables key-mapped body-part filtering.
func WithBodyPartResolver(r *resolver.BodyPartResolver) Option {
	return func(n *Navigator) { n.bodyParts = r }
}

// WithLogger sets the navigator logger.
func WithLogger(l zerolog.Logger) Option {
	return func(n *Navigator) { n.logger = l }
}

// New creates a navigator. A nil engine runs the default rules.
func New(index IndexSearcher, tables TableExpander, engine *rules.Engine, opts ...Option) *Navigator {
	if engine == nil {
		engine = rules.NewEngine()
	}
	n := &Navigator{index: index, tables: tables, engine: engine, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Plan is the prepared state of one proposal: the rule outcome, the ranked
// prefixes and the per-axis filters derived from the facts.
type Plan struct {
	Facts    rules.Facts
	Outcome  rules.Outcome
	Prefixes []ScoredPrefix

	wantApproach     string
	requiredApproach string
	wantQualifier    string
	bodyPart         bodyPartFilter
	device           deviceFilter
}

// PrefixesConsidered returns the ranked prefixes in order.
func (p *Plan) PrefixesConsidered() []string {
	out := make([]string, 0, len(p.Prefixes))
	for _, sp := range p.Prefixes {
		out = append(out, sp.Prefix)
	}
	return out
}

// Plan applies the rules, looks the query up in the index and ranks the
// Medical and Surgical tables it points to.
func (n *Navigator) Plan(query string, facts rules.Facts) *Plan {
	p := &Plan{Facts: facts, Outcome: n.engine.Apply(facts)}
	muts := p.Outcome.Mutations

	var scored []ScoredPrefix
	for _, prefix := range n.candidatePrefixes(query) {
		exps := n.tables.ExpandFromPrefix(prefix)
		if len(exps) == 0 {
			continue
		}
		op := exps[0].Table.OperationLabel
		scored = append(scored, ScoredPrefix{
			Prefix:         prefix,
			Score:          scoreOperation(op, muts, facts.Checklist),
			OperationLabel: op,
		})
	}
	rankPrefixes(scored)
	if len(scored) > maxPrefixes {
		scored = scored[:maxPrefixes]
	}
	p.Prefixes = scored

	p.wantApproach = facts.ApproachName
	if v, ok := muts.LastSet(rules.FieldQualifier); ok {
		p.wantQualifier = v
	}
	wantDevice := facts.DeviceName
	if v, ok := muts.LastSet(rules.FieldDevice); ok {
		wantDevice = v
	}

	if cl := facts.Checklist; cl != nil {
		p.requiredApproach = cl.ApproachRequired
		for _, l := range cl.AllowedPos4Labels {
			p.bodyPart.allowList = append(p.bodyPart.allowList, strings.ToLower(l))
		}
	}
	if n.bodyParts != nil {
		terms := facts.AnatomyTerms
		if len(terms) == 0 && facts.IndexQuery != "" {
			terms = []string{facts.IndexQuery}
		}
		p.bodyPart.anatomyTerms = terms
		for _, l := range n.bodyParts.ResolveAllowedLabels(terms) {
			p.bodyPart.resolved = append(p.bodyPart.resolved, strings.ToLower(l))
		}
	}

	p.device = deviceFilter{forcedNone: forcesNoDevice(muts), want: wantDevice}
	if n.devices != nil && wantDevice != "" {
		p.device.canonical = n.devices.NormalizeTerms(wantDevice)
		p.device.resolve = n.devices.AggregateForTable
	}
	return p
}

// candidatePrefixes collects the distinct Medical and Surgical prefixes of
// the index hits for query, in hit order.
func (n *Navigator) candidatePrefixes(query string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, h := range n.index.Lookup(query, indexHitCap) {
		for _, p := range h.CodePrefixes {
			if len(p) < 3 || p[0] != '0' {
				continue
			}
			p = p[:3]
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// Candidates yields every code the plan admits, walking prefixes in rank
// order and each row's axes in table order.
func (n *Navigator) Candidates(p *Plan) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		for _, sp := range p.Prefixes {
			for _, exp := range n.tables.ExpandFromPrefix(sp.Prefix) {
				if !p.expandRow(sp, exp, yield) {
					return
				}
			}
		}
	}
}

func (p *Plan) expandRow(sp ScoredPrefix, exp pcstables.Expansion, yield func(Candidate) bool) bool {
	row := exp.Row
	for _, l4 := range row.BodyPart.Labels {
		keep4, why4 := p.bodyPart.keep(l4.Label)
		if !keep4 {
			continue
		}
		for _, l5 := range row.Approach.Labels {
			if p.requiredApproach != "" && !matchLabel(l5.Label, p.requiredApproach) {
				continue
			}
			if !matchLabel(l5.Label, p.wantApproach) {
				continue
			}
			for _, l6 := range row.Device.Labels {
				keep6, why6 := p.device.keep(exp.Table, l6.Label)
				if !keep6 {
					continue
				}
				for _, l7 := range row.Qualifier.Labels {
					if p.wantQualifier != "" && !matchLabel(l7.Label, p.wantQualifier) {
						continue
					}
					c := Candidate{
						Code: sp.Prefix + l4.Code + l5.Code + l6.Code + l7.Code,
						Labels: Labels{
							Pos4:      l4.Label,
							Pos5:      l5.Label,
							Pos6:      l6.Label,
							Pos7:      l7.Label,
							Operation: sp.OperationLabel,
						},
						Rationale: p.rationale(why4, why6, sp.OperationLabel),
					}
					if !yield(c) {
						return false
					}
				}
			}
		}
	}
	return true
}

func (p *Plan) rationale(why4, why6, operation string) []string {
	var out []string
	if why4 != "" {
		out = append(out, why4)
	}
	if p.wantQualifier != "" {
		out = append(out, "Qualifier matched '"+p.wantQualifier+"'")
	}
	if p.wantApproach != "" {
		out = append(out, "Approach matched '"+p.wantApproach+"'")
	}
	if why6 != "" {
		out = append(out, why6)
	}
	return append(out, "Operation prioritized as '"+operation+"'")
}

// ProposeCodes returns up to limit candidate codes for query. A limit of
// zero or less means DefaultLimit.
func (n *Navigator) ProposeCodes(ctx context.Context, query string, facts rules.Facts, limit int) *ProposeResult {
	_, span := otel.Tracer(tracerName).Start(ctx, "navigator.Navigator.Propose")
	defer span.End()
	start := time.Now()

	if limit <= 0 {
		limit = DefaultLimit
	}
	plan := n.Plan(query, facts)
	res := &ProposeResult{
		PrefixesConsidered: plan.PrefixesConsidered(),
		Candidates:         []Candidate{},
		Mutations:          plan.Outcome.Mutations,
		Actions:            plan.Outcome.Actions,
	}
	for c := range n.Candidates(plan) {
		res.Candidates = append(res.Candidates, c)
		if len(res.Candidates) >= limit {
			break
		}
	}

	span.SetAttributes(
		attribute.String("query", query),
		attribute.Int("prefixes", len(res.PrefixesConsidered)),
		attribute.Int("candidates", len(res.Candidates)),
	)
	if len(res.Candidates) == 0 {
		span.AddEvent("no candidates")
	}
	observeProposal(res, time.Since(start))

	n.logger.Debug().
		Str("query", query).
		Strs("prefixes", res.PrefixesConsidered).
		Int("candidates", len(res.Candidates)).
		Msg("codes proposed")
	return res
}
