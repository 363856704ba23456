package navigator

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/pcsguide/internal/domain/checklist"
	"github.com/ehr/pcsguide/internal/domain/notefacts"
	"github.com/ehr/pcsguide/internal/domain/rules"
)

// ChecklistSourceRequest marks a checklist chosen by the caller.
const ChecklistSourceRequest = "request"

// genericQueries are index queries too vague to navigate once a checklist
// has narrowed the encounter.
var genericQueries = []string{"procedure", "operative", "operation", "surgery"}

const steeredQuery = "debridement"

// Overrides are user corrections applied on top of the extracted facts.
// Nil fields keep the extracted value.
type Overrides struct {
	Approach *string  `json:"approach,omitempty"`
	Device   *string  `json:"device,omitempty"`
	Flags    []string `json:"flags,omitempty"`
	Query    *string  `json:"query,omitempty"`
}

// AnalyzeRequest is the input of an end-to-end note analysis.
type AnalyzeRequest struct {
	NoteText    string     `json:"note_text" validate:"required"`
	ChecklistID string     `json:"checklist_id,omitempty"`
	Overrides   *Overrides `json:"overrides,omitempty"`
	Limit       int        `json:"limit" validate:"gte=0"`
}

// ChecklistChoice is the checklist an analysis ran under.
type ChecklistChoice struct {
	ID           string                 `json:"id,omitempty"`
	Title        string                 `json:"title,omitempty"`
	Confidence   float64                `json:"confidence"`
	Distribution map[string]float64     `json:"distribution,omitempty"`
	Source       string                 `json:"source"`
	Constraints  *checklist.Constraints `json:"constraints,omitempty"`
}

// AnalyzeResult is the outcome of an analysis.
type AnalyzeResult struct {
	RunID     string          `json:"run_id"`
	Query     string          `json:"query"`
	Extracted rules.Facts     `json:"extracted_facts"`
	Facts     rules.Facts     `json:"facts"`
	Checklist ChecklistChoice `json:"checklist"`
	Proposal  *ProposeResult  `json:"proposal"`
}

// Service runs proposals and full note analyses.
type Service struct {
	nav          *Navigator
	classifier   *checklist.Classifier
	provider     *checklist.Provider
	defaultLimit int
	maxLimit     int
	logger       zerolog.Logger
}

// NewService creates a navigator service. classifier and provider may be nil,
// in which case analyses run without a checklist.
func NewService(nav *Navigator, classifier *checklist.Classifier, provider *checklist.Provider, defaultLimit, maxLimit int, logger zerolog.Logger) *Service {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &Service{
		nav:          nav,
		classifier:   classifier,
		provider:     provider,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		logger:       logger,
	}
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	return min(limit, s.maxLimit)
}

// Propose runs the navigator with the service's limit policy.
func (s *Service) Propose(ctx context.Context, query string, facts rules.Facts, limit int) *ProposeResult {
	return s.nav.ProposeCodes(ctx, query, facts, s.clampLimit(limit))
}

// Analyze extracts facts from a note, picks a checklist, applies overrides
// and proposes codes. An unknown explicit checklist id returns
// checklist.ErrUnknownChecklist. When ctx expires while the checklist is
// being picked, its error is returned instead of a proposal.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	extracted := notefacts.Extract(req.NoteText)
	res := &AnalyzeResult{RunID: uuid.NewString(), Extracted: extracted}

	choice, err := s.chooseChecklist(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.Checklist = choice

	query := extracted.IndexQuery
	if query == "" {
		query = notefacts.DefaultQuery
	}
	if choice.Constraints != nil && slices.Contains(genericQueries, query) {
		query = steeredQuery
	}

	facts := rules.Facts{
		Flags:        extracted.Flags,
		ApproachName: extracted.ApproachName,
		DeviceName:   extracted.DeviceName,
		Checklist:    choice.Constraints,
	}
	if o := req.Overrides; o != nil {
		if o.Approach != nil {
			facts.ApproachName = *o.Approach
		}
		if o.Device != nil {
			facts.DeviceName = *o.Device
		}
		if o.Flags != nil {
			facts.Flags = o.Flags
		}
		if o.Query != nil && *o.Query != "" {
			query = *o.Query
		}
	}
	facts.IndexQuery = query
	facts.AnatomyTerms = []string{query}

	res.Query = query
	res.Facts = facts
	res.Proposal = s.Propose(ctx, query, facts, req.Limit)

	s.logger.Info().
		Str("run_id", res.RunID).
		Str("checklist", choice.ID).
		Str("checklist_source", choice.Source).
		Str("query", query).
		Int("candidates", len(res.Proposal.Candidates)).
		Msg("note analyzed")
	return res, nil
}

func (s *Service) chooseChecklist(ctx context.Context, req AnalyzeRequest) (ChecklistChoice, error) {
	var choice ChecklistChoice
	if req.ChecklistID != "" {
		choice = ChecklistChoice{ID: req.ChecklistID, Confidence: 1, Source: ChecklistSourceRequest}
	} else if s.classifier != nil {
		d := s.classifier.Detect(ctx, req.NoteText)
		choice = ChecklistChoice{
			ID:           d.Label,
			Confidence:   d.Confidence,
			Distribution: d.Distribution,
			Source:       d.Source,
		}
	}
	if choice.ID == "" || s.provider == nil {
		return choice, nil
	}
	if s.classifier != nil {
		choice.Title, _ = s.classifier.Title(choice.ID)
	}

	cons, err := s.provider.Constraints(choice.ID)
	switch {
	case err == nil:
		choice.Constraints = cons
	case req.ChecklistID != "" && errors.Is(err, checklist.ErrUnknownChecklist):
		return choice, err
	case errors.Is(err, checklist.ErrNotConfigured), errors.Is(err, checklist.ErrUnknownChecklist):
		s.logger.Warn().Err(err).Str("checklist", choice.ID).Msg("checklist constraints unavailable, proposing without them")
	default:
		return choice, fmt.Errorf("load checklist %s: %w", choice.ID, err)
	}
	return choice, nil
}
