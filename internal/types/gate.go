package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GateStatus is the lifecycle state of a review gate.
type GateStatus string

const (
	GateOpen     GateStatus = "open"
	GateResolved GateStatus = "resolved"
	GateExpired  GateStatus = "expired"
)

// GateKind discriminates the payload variants a gate can carry.
type GateKind string

const (
	GateInterview       GateKind = "interview"
	GateBlueprintReview GateKind = "blueprint_review"
	GateSectionReview   GateKind = "section_review"
	GateReadiness       GateKind = "readiness"
)

// Gate is a suspension point where the controller waits for an external
// response. Its ID is deterministic (node key plus context), so the same
// logical checkpoint produces the same ID across retries. NodeVersion pins
// the gate to the stage version it was opened against; a resolve after the
// node has been rebuilt is a conflict.
type Gate struct {
	ID          string          `json:"id"`
	RunID       uuid.UUID       `json:"run_id"`
	NodeKey     NodeKey         `json:"node_key"`
	Context     string          `json:"context,omitempty"`
	NodeVersion int             `json:"node_version"`
	Status      GateStatus      `json:"status"`
	Payload     GatePayload     `json:"payload"`
	Response    json.RawMessage `json:"response,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
}

// GateID derives the deterministic gate identifier for a checkpoint.
func GateID(key NodeKey, context string) string {
	if context == "" {
		return fmt.Sprintf("gate_%s", key)
	}
	return fmt.Sprintf("gate_%s_%s", key, context)
}

// GatePayload is a tagged union keyed by Kind. Exactly one variant must be
// populated; Validate enforces the shape and the schemas package enforces the
// full contract at the gate-payload boundary.
type GatePayload struct {
	Kind            GateKind                `json:"kind"`
	Interview       *InterviewPayload       `json:"interview,omitempty"`
	BlueprintReview *BlueprintReviewPayload `json:"blueprint_review,omitempty"`
	SectionReview   *SectionReviewPayload   `json:"section_review,omitempty"`
	Readiness       *ReadinessPayload       `json:"readiness,omitempty"`
}

// Validate checks that exactly the variant named by Kind is set.
func (p *GatePayload) Validate() error {
	variants := map[GateKind]bool{
		GateInterview:       p.Interview != nil,
		GateBlueprintReview: p.BlueprintReview != nil,
		GateSectionReview:   p.SectionReview != nil,
		GateReadiness:       p.Readiness != nil,
	}
	want, known := variants[p.Kind]
	if !known {
		return fmt.Errorf("unknown gate kind: %q", p.Kind)
	}
	if !want {
		return fmt.Errorf("gate payload kind %q has no %s variant", p.Kind, p.Kind)
	}
	for kind, set := range variants {
		if kind != p.Kind && set {
			return fmt.Errorf("gate payload kind %q carries stray %s variant", p.Kind, kind)
		}
	}
	return nil
}

// InterviewPayload asks the candidate for missing evidence.
type InterviewPayload struct {
	Questions []InterviewQuestion `json:"questions"`
}

// InterviewQuestion is one evidence-gathering question tied to a gap.
type InterviewQuestion struct {
	ID    string `json:"id"`
	GapID string `json:"gap_id"`
	Text  string `json:"text"`
}

// BlueprintReviewPayload presents the proposed section outline.
type BlueprintReviewPayload struct {
	Sections []SectionPlan `json:"sections"`
}

// SectionPlan is one planned section in the blueprint.
type SectionPlan struct {
	Name    string `json:"name"`
	Purpose string `json:"purpose"`
	Order   int    `json:"order"`
}

// SectionReviewPayload carries a drafted section and its ranked suggestions.
type SectionReviewPayload struct {
	Section           string       `json:"section"`
	Draft             string       `json:"draft"`
	Bundle            BundleKey    `json:"bundle"`
	RemainingRequired int          `json:"remaining_required"`
	Suggestions       []Suggestion `json:"suggestions"`
}

// ReadinessPayload reports evidence-gathering progress below the advance
// threshold.
type ReadinessPayload struct {
	Score            float64 `json:"score"`
	Threshold        float64 `json:"threshold"`
	CompletedQueries int     `json:"completed_queries"`
	TotalQueries     int     `json:"total_queries"`
}

// GateResponse is the client's answer to an open gate. Action names are
// interpreted per gate kind; the schemas package validates shape.
type GateResponse struct {
	Action  string            `json:"action" validate:"required,oneof=approve revise answer advance wait approve_bundle"`
	Answers map[string]string `json:"answers,omitempty"`
	Edits   map[string]string `json:"edits,omitempty"`
	Note    string            `json:"note,omitempty"`
}
