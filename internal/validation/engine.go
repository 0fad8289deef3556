package validation

import (
	"context"
	"fmt"
	"math"
	"strings"

	"claimscompanion/backend/internal/checklist"
)

type State string

const (
	StateOK          State = "ok"
	StateNeedsReview State = "needs_review"
	StateInvalid     State = "invalid"
	StateMissing     State = "missing"
)

type Decision string

const (
	DecisionNeedsMoreInfo     Decision = "needs_more_info"
	DecisionNeedsCorrection   Decision = "needs_correction"
	DecisionNeedsVerification Decision = "needs_verification"
	DecisionPreApprove        Decision = "pre_approve"
	DecisionReadyForReview    Decision = "ready_for_review"
)

// ClaimInfo is the engine's view of a claim: named fields where absence is
// an empty string, never a reflective probe.
type ClaimInfo struct {
	ID        int64
	ClaimType string
	Fields    map[string]string
}

// Document is the engine's view of one uploaded file.
type Document struct {
	ID       int64
	FileName string
	FilePath string
	DocType  string
}

// DocDetail records one document's validation outcome inside an item status.
type DocDetail struct {
	FileName    string   `json:"file_name"`
	IsValid     bool     `json:"is_valid"`
	Confidence  float64  `json:"confidence"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

// ItemStatus is recomputed on every pass, never partially mutated.
type ItemStatus struct {
	Key        string      `json:"key"`
	Title      string      `json:"title"`
	Required   bool        `json:"required"`
	State      State       `json:"state"`
	Confidence float64     `json:"confidence"`
	DocType    string      `json:"doc_type,omitempty"`
	Evidence   []string    `json:"evidence"`
	Details    []DocDetail `json:"validation_details"`
}

type Summary struct {
	TotalItems     int     `json:"total_items"`
	CompletedItems int     `json:"completed_items"`
	MissingItems   int     `json:"missing_items"`
	InvalidItems   int     `json:"invalid_items"`
	ReviewItems    int     `json:"review_items"`
	CompletionRate float64 `json:"completion_rate"`
}

// Snapshot is ephemeral: recomputed per request from the full current
// document set. Only Progress and DecisionHint are written back onto the
// owning claim.
type Snapshot struct {
	Items             []ItemStatus `json:"items"`
	Progress          int          `json:"progress"`
	OverallConfidence float64      `json:"overall_confidence"`
	DecisionHint      Decision     `json:"decision_hint"`
	NextPrompt        string       `json:"next_prompt"`
	ClaimType         string       `json:"claim_type"`
	Summary           Summary      `json:"validation_summary"`
}

// DocumentValidator is the per-document judgement boundary.
type DocumentValidator interface {
	Validate(ctx context.Context, path string, item checklist.ItemSpec) Outcome
}

// Engine aggregates per-item states into progress and a decision signal.
type Engine struct {
	validator DocumentValidator
}

func NewEngine(validator DocumentValidator) *Engine {
	return &Engine{validator: validator}
}

// BuildStatus computes the validation snapshot for a claim from the full
// current set of its documents.
func (e *Engine) BuildStatus(ctx context.Context, claim ClaimInfo, docs []Document) Snapshot {
	items := checklist.ForClaimType(claim.ClaimType)

	byType := map[string][]Document{}
	for _, d := range docs {
		byType[d.DocType] = append(byType[d.DocType], d)
	}

	var statuses []ItemStatus
	totalConfidence := 0.0

	for _, item := range items {
		st := e.itemStatus(ctx, claim, byType, item)
		totalConfidence += st.Confidence
		statuses = append(statuses, st)
	}

	reqTotal, reqOK := 0, 0
	for _, st := range statuses {
		if st.Required {
			reqTotal++
			if st.State == StateOK {
				reqOK++
			}
		}
	}

	progress := 100
	if reqTotal > 0 {
		progress = int(math.Round(100 * float64(reqOK) / float64(reqTotal)))
	}

	avgConfidence := 0.0
	if len(statuses) > 0 {
		avgConfidence = totalConfidence / float64(len(statuses))
	}

	return Snapshot{
		Items:             statuses,
		Progress:          progress,
		OverallConfidence: round2(avgConfidence),
		DecisionHint:      decide(statuses, avgConfidence),
		NextPrompt:        nextPrompt(statuses),
		ClaimType:         claim.ClaimType,
		Summary:           summarize(statuses),
	}
}

func (e *Engine) itemStatus(ctx context.Context, claim ClaimInfo, byType map[string][]Document, item checklist.ItemSpec) ItemStatus {
	st := ItemStatus{
		Key:      item.Key,
		Title:    item.Title,
		Required: item.Required,
		DocType:  item.DocType,
		Evidence: []string{},
		Details:  []DocDetail{},
	}

	present := false
	invalid := false
	confidence := 0.0

	switch {
	case item.DocType != "":
		matched := byType[item.DocType]
		if len(matched) == 0 {
			// Alternatives count as present but carry no validation signal.
			for _, alt := range item.AlternateDocTypes {
				if alts := byType[alt]; len(alts) > 0 {
					present = true
					for _, d := range alts {
						st.Evidence = append(st.Evidence, d.FileName)
					}
					break
				}
			}
			break
		}

		present = true
		for _, d := range matched {
			st.Evidence = append(st.Evidence, d.FileName)
			if d.FilePath == "" {
				continue
			}
			outcome := e.validator.Validate(ctx, d.FilePath, item)
			if !outcome.IsValid {
				invalid = true
			}
			if outcome.Confidence > confidence {
				confidence = outcome.Confidence
			}
			st.Details = append(st.Details, DocDetail{
				FileName:    d.FileName,
				IsValid:     outcome.IsValid,
				Confidence:  outcome.Confidence,
				Issues:      outcome.Issues,
				Suggestions: outcome.Suggestions,
			})
		}

	case len(item.ClaimFields) > 0:
		present = true
		for _, field := range item.ClaimFields {
			if strings.TrimSpace(claim.Fields[field]) == "" {
				present = false
				break
			}
		}
		if present {
			confidence = 1.0
		}
	}

	st.Confidence = round2(confidence)
	st.State = deriveState(present, invalid, confidence)
	return st
}

// deriveState applies the precedence: missing, then invalid, then
// needs_review on low confidence, then ok.
func deriveState(present, invalid bool, confidence float64) State {
	switch {
	case !present:
		return StateMissing
	case invalid:
		return StateInvalid
	case confidence <= 0.6:
		return StateNeedsReview
	default:
		return StateOK
	}
}

// decide: a missing required item outweighs invalid items, which outweigh
// confidence thresholds.
func decide(statuses []ItemStatus, avgConfidence float64) Decision {
	if len(statuses) == 0 {
		return DecisionReadyForReview
	}

	reqTotal, reqOK, missingRequired, invalidCount := 0, 0, 0, 0
	for _, st := range statuses {
		if st.State == StateInvalid {
			invalidCount++
		}
		if st.Required {
			reqTotal++
			switch st.State {
			case StateOK:
				reqOK++
			case StateMissing:
				missingRequired++
			}
		}
	}

	switch {
	case missingRequired > 0:
		return DecisionNeedsMoreInfo
	case invalidCount > 0:
		return DecisionNeedsCorrection
	case reqOK == reqTotal && avgConfidence > 0.8:
		return DecisionReadyForReview
	case reqOK == reqTotal && avgConfidence > 0.6:
		return DecisionPreApprove
	default:
		return DecisionNeedsVerification
	}
}

func nextPrompt(statuses []ItemStatus) string {
	for _, st := range statuses {
		if st.Required && st.State == StateMissing {
			return fmt.Sprintf("Next: Please %s your %s.", actionVerb(st), strings.ToLower(st.Title))
		}
	}

	for _, st := range statuses {
		if st.State != StateInvalid {
			continue
		}
		for _, d := range st.Details {
			if len(d.Suggestions) > 0 {
				return fmt.Sprintf("Issue with %s: %s", st.Title, d.Suggestions[0])
			}
		}
		return fmt.Sprintf("The uploaded %s needs to be clearer. Please upload a better version.", strings.ToLower(st.Title))
	}

	for _, st := range statuses {
		if st.State == StateNeedsReview {
			return fmt.Sprintf("Your %s needs verification. Please ensure it's clear and complete.", strings.ToLower(st.Title))
		}
	}

	for _, st := range statuses {
		if !st.Required && st.State == StateMissing {
			return fmt.Sprintf("Optional: You may also provide %s to strengthen your claim.", strings.ToLower(st.Title))
		}
	}

	reqDone, reqTotal := 0, 0
	for _, st := range statuses {
		if st.Required {
			reqTotal++
			if st.State == StateOK {
				reqDone++
			}
		}
	}
	if reqDone == reqTotal {
		return "All required documents received! Your claim is being processed."
	}
	return "Please provide any missing information to complete your claim."
}

func actionVerb(st ItemStatus) string {
	if st.DocType != "" {
		if strings.Contains(strings.ToLower(st.Title), "photo") {
			return "upload"
		}
		return "attach"
	}
	return "provide"
}

// ShouldEscalate is the auto-escalation predicate: every required item is
// ok. Optional items may remain missing without blocking escalation.
func ShouldEscalate(snap Snapshot) bool {
	for _, st := range snap.Items {
		if st.Required && st.State != StateOK {
			return false
		}
	}
	return true
}

func summarize(statuses []ItemStatus) Summary {
	s := Summary{TotalItems: len(statuses)}
	for _, st := range statuses {
		switch st.State {
		case StateOK:
			s.CompletedItems++
		case StateMissing:
			s.MissingItems++
		case StateInvalid:
			s.InvalidItems++
		case StateNeedsReview:
			s.ReviewItems++
		}
	}
	if s.TotalItems > 0 {
		s.CompletionRate = math.Round(1000*float64(s.CompletedItems)/float64(s.TotalItems)) / 10
	}
	return s
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
