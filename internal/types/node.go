package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NodeKey identifies a stage in the fixed pipeline graph.
type NodeKey string

const (
	NodeIntake      NodeKey = "intake"
	NodeResearch    NodeKey = "research"
	NodeGapAnalysis NodeKey = "gap_analysis"
	NodeInterview   NodeKey = "interview"
	NodeBlueprint   NodeKey = "blueprint"
	NodeSections    NodeKey = "sections"
	NodeQuality     NodeKey = "quality"
	NodeExport      NodeKey = "export"
)

// NodeStatus is the lifecycle state of a single stage node.
type NodeStatus string

const (
	NodeLocked       NodeStatus = "locked"
	NodePending      NodeStatus = "pending"
	NodeInProgress   NodeStatus = "in_progress"
	NodeBlocked      NodeStatus = "blocked"
	NodeComplete     NodeStatus = "complete"
	NodeAutoApproved NodeStatus = "auto_approved"
)

// StageNode is one unit of work in a run's dependency graph.
// ActiveVersion increases monotonically; it is bumped every time the node is
// rebuilt after a replan, never decremented.
type StageNode struct {
	RunID         uuid.UUID      `json:"run_id"`
	Key           NodeKey        `json:"node_key"`
	Status        NodeStatus     `json:"status"`
	ActiveVersion int            `json:"active_version"`
	Meta          map[string]any `json:"meta,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Done reports whether the node counts as satisfied for downstream
// dependency checks.
func (n *StageNode) Done() bool {
	return n.Status == NodeComplete || n.Status == NodeAutoApproved
}

// MetaValue decodes the named meta entry into out via a JSON round trip.
// Stage meta is stored as opaque maps; this is the one sanctioned way to get
// typed data back out. Returns false if the key is absent.
func (n *StageNode) MetaValue(key string, out any) (bool, error) {
	if n.Meta == nil {
		return false, nil
	}
	raw, ok := n.Meta[key]
	if !ok {
		return false, nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return false, fmt.Errorf("encode meta %q: %w", key, err)
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return false, fmt.Errorf("decode meta %q: %w", key, err)
	}
	return true, nil
}

// SetMeta stores a value under key, initializing the meta map if needed.
func (n *StageNode) SetMeta(key string, value any) {
	if n.Meta == nil {
		n.Meta = make(map[string]any)
	}
	n.Meta[key] = value
}
