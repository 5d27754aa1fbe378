package types

// BundleKey names a review bundle. Bundles are reviewed in dependency order:
// headline, then core_experience, then supporting.
type BundleKey string

const (
	BundleHeadline       BundleKey = "headline"
	BundleCoreExperience BundleKey = "core_experience"
	BundleSupporting     BundleKey = "supporting"
)

// BundleStatus is the derived state of a review bundle.
type BundleStatus string

const (
	BundlePending      BundleStatus = "pending"
	BundleInProgress   BundleStatus = "in_progress"
	BundleComplete     BundleStatus = "complete"
	BundleAutoApproved BundleStatus = "auto_approved"
)

// ReviewBundle aggregates section review state. It is purely derived from
// section statuses and never independently authoritative; recomputing it from
// scratch must always reproduce the same values.
type ReviewBundle struct {
	Key              BundleKey    `json:"key"`
	Label            string       `json:"label"`
	TotalSections    int          `json:"total_sections"`
	ReviewRequired   int          `json:"review_required"`
	ReviewedRequired int          `json:"reviewed_required"`
	Status           BundleStatus `json:"status"`
}

// Section is the per-section review state tracked by the sections stage.
type Section struct {
	Name           string `json:"name"`
	Draft          string `json:"draft"`
	ReviewRequired bool   `json:"review_required"`
	Reviewed       bool   `json:"reviewed"`
	Approved       bool   `json:"approved"`
}
