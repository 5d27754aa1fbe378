// Package graph defines the fixed stage dependency graph and the traversal
// operations the controller and replan trigger build on.
package graph

import (
	"fmt"

	"github.com/jonathan/resume-author/internal/types"
)

// Order lists every stage in topological order. The graph is a linear chain;
// the research stage fans out internally but reports back as a single node.
var Order = []types.NodeKey{
	types.NodeIntake,
	types.NodeResearch,
	types.NodeGapAnalysis,
	types.NodeInterview,
	types.NodeBlueprint,
	types.NodeSections,
	types.NodeQuality,
	types.NodeExport,
}

var dependencies = map[types.NodeKey][]types.NodeKey{
	types.NodeIntake:      {},
	types.NodeResearch:    {types.NodeIntake},
	types.NodeGapAnalysis: {types.NodeResearch},
	types.NodeInterview:   {types.NodeGapAnalysis},
	types.NodeBlueprint:   {types.NodeInterview},
	types.NodeSections:    {types.NodeBlueprint},
	types.NodeQuality:     {types.NodeSections},
	types.NodeExport:      {types.NodeQuality},
}

// Dependencies returns the upstream nodes key depends on.
func Dependencies(key types.NodeKey) []types.NodeKey {
	return dependencies[key]
}

// Known reports whether key is part of the graph.
func Known(key types.NodeKey) bool {
	_, ok := dependencies[key]
	return ok
}

// Position returns key's index in topological order, or an error for an
// unknown key.
func Position(key types.NodeKey) (int, error) {
	for i, k := range Order {
		if k == key {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown stage node: %q", key)
}

// Descendants returns every node reachable forward from `from`, inclusive,
// in topological order. This is the stale set for a replan rebuilding from
// that node.
func Descendants(from types.NodeKey) ([]types.NodeKey, error) {
	if !Known(from) {
		return nil, fmt.Errorf("unknown stage node: %q", from)
	}
	stale := map[types.NodeKey]bool{from: true}
	// One forward sweep suffices because Order is topological.
	for _, key := range Order {
		for _, dep := range dependencies[key] {
			if stale[dep] {
				stale[key] = true
			}
		}
	}
	var out []types.NodeKey
	for _, key := range Order {
		if stale[key] {
			out = append(out, key)
		}
	}
	return out, nil
}

// NextReady returns the first node in topological order that has not yet
// finished and whose dependencies are all satisfied, or nil when no node is
// currently startable. Nodes that are blocked at a gate or already running
// are not ready.
func NextReady(nodes []types.StageNode) *types.StageNode {
	byKey := make(map[types.NodeKey]*types.StageNode, len(nodes))
	for i := range nodes {
		byKey[nodes[i].Key] = &nodes[i]
	}
	for _, key := range Order {
		node, ok := byKey[key]
		if !ok {
			continue
		}
		if node.Done() || node.Status == types.NodeBlocked || node.Status == types.NodeInProgress {
			continue
		}
		ready := true
		for _, dep := range dependencies[key] {
			upstream, ok := byKey[dep]
			if !ok || !upstream.Done() {
				ready = false
				break
			}
		}
		if ready {
			return node
		}
	}
	return nil
}

// AllDone reports whether every node in the graph has finished.
func AllDone(nodes []types.StageNode) bool {
	byKey := make(map[types.NodeKey]bool, len(nodes))
	for i := range nodes {
		byKey[nodes[i].Key] = nodes[i].Done()
	}
	for _, key := range Order {
		if !byKey[key] {
			return false
		}
	}
	return true
}
