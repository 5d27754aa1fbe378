package types

// Criticality weights a requirement for suggestion scoring.
type Criticality string

const (
	CriticalityMustHave   Criticality = "must_have"
	CriticalityNiceToHave Criticality = "nice_to_have"
	CriticalityImplicit   Criticality = "implicit"
)

// Requirement is one benchmark requirement extracted from the job posting.
type Requirement struct {
	ID          string      `json:"id"`
	Text        string      `json:"text"`
	Criticality Criticality `json:"criticality"`
	Keywords    []string    `json:"keywords,omitempty"`
}

// EvidenceState classifies how well a requirement is covered by evidence.
type EvidenceState string

const (
	EvidenceNone     EvidenceState = "no_evidence"
	EvidenceNoMetric EvidenceState = "no_metric"
	EvidenceWeak     EvidenceState = "weak"
)

// Gap is an unresolved requirement: the requirement plus the reason its
// coverage is considered insufficient.
type Gap struct {
	RequirementID string        `json:"requirement_id"`
	Requirement   Requirement   `json:"requirement"`
	EvidenceState EvidenceState `json:"evidence_state"`
}

// EvidenceItem is one piece of candidate evidence gathered during research
// or the interview stage.
type EvidenceItem struct {
	ID            string `json:"id"`
	RequirementID string `json:"requirement_id,omitempty"`
	Text          string `json:"text"`
	HasMetric     bool   `json:"has_metric"`
	Strength      string `json:"strength"` // strong | weak
	Source        string `json:"source"`   // resume | interview | research
	Used          bool   `json:"used"`
}

// Benchmark is the parsed job-posting model that downstream stages build on.
// An accepted edit to it is what triggers a replan cascade.
type Benchmark struct {
	RoleTitle    string        `json:"role_title"`
	Company      string        `json:"company"`
	Requirements []Requirement `json:"requirements"`
	Keywords     []string      `json:"keywords"`
	EditVersion  int           `json:"edit_version"`
}
