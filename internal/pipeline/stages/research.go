package stages

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/resume-author/internal/events"
	"github.com/jonathan/resume-author/internal/pipeline"
	"github.com/jonathan/resume-author/internal/types"
)

// researchConcurrency bounds the evidence query fan-out.
const researchConcurrency = 4

// ResearchStage mines the resume for evidence against each benchmark
// requirement. Queries fan out concurrently; when coverage lands below the
// readiness threshold the stage pauses at a readiness gate so the client can
// wait for the interview to fill gaps or advance anyway.
type ResearchStage struct {
	deps Deps
}

func (s *ResearchStage) Key() types.NodeKey { return types.NodeResearch }

func (s *ResearchStage) Run(ctx context.Context, in *pipeline.StageInput) (*pipeline.Outcome, error) {
	// Resumed after the readiness gate: the client picked advance or wait.
	// Either way the evidence already gathered stands; waiting is handled by
	// the interview stage downstream, so both actions finish this stage.
	if in.Response != nil {
		return pipeline.Done(), nil
	}

	bench, err := loadBenchmark(ctx, in.Store, in.Run.ID)
	if err != nil {
		return nil, err
	}
	resume, err := in.Store.GetTextArtifact(ctx, in.Run.ID, ArtifactResume)
	if err != nil {
		return nil, fmt.Errorf("failed to load resume artifact: %w", err)
	}

	evidence, completed, err := mineEvidence(ctx, bench, resume)
	if err != nil {
		return nil, err
	}
	if err := in.Store.SaveArtifact(ctx, in.Run.ID, ArtifactEvidence, evidence); err != nil {
		return nil, err
	}

	total := len(bench.Requirements)
	score := coverage(bench, evidence)
	in.Emit(events.EventReadinessUpdate, map[string]any{
		"score":             score,
		"threshold":         s.deps.ReadinessThreshold,
		"completed_queries": completed,
		"total_queries":     total,
	})

	if score < s.deps.ReadinessThreshold {
		return pipeline.Suspend("", types.GatePayload{
			Kind: types.GateReadiness,
			Readiness: &types.ReadinessPayload{
				Score:            score,
				Threshold:        s.deps.ReadinessThreshold,
				CompletedQueries: completed,
				TotalQueries:     total,
			},
		}), nil
	}
	return pipeline.Done(), nil
}

// mineEvidence runs one query per requirement over the resume text.
func mineEvidence(ctx context.Context, bench *types.Benchmark, resume string) ([]types.EvidenceItem, int, error) {
	sentences := splitSentences(resume)

	var mu sync.Mutex
	var evidence []types.EvidenceItem
	completed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(researchConcurrency)
	for _, req := range bench.Requirements {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			found := queryEvidence(req, sentences)
			mu.Lock()
			defer mu.Unlock()
			evidence = append(evidence, found...)
			completed++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("evidence mining failed: %w", err)
	}

	// Fan-out order is nondeterministic; renumber stably by requirement.
	stable := make([]types.EvidenceItem, 0, len(evidence))
	n := 0
	for _, req := range bench.Requirements {
		for _, item := range evidence {
			if item.RequirementID == req.ID {
				n++
				item.ID = fmt.Sprintf("ev_%d", n)
				stable = append(stable, item)
			}
		}
	}
	return stable, completed, nil
}

func queryEvidence(req types.Requirement, sentences []string) []types.EvidenceItem {
	terms := req.Keywords
	if len(terms) == 0 {
		terms = strings.Fields(req.Text)
	}
	var out []types.EvidenceItem
	for _, sentence := range sentences {
		lower := strings.ToLower(sentence)
		matched := false
		for _, term := range terms {
			if len(term) < 2 {
				continue
			}
			if strings.Contains(lower, strings.ToLower(term)) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		hasMetric := containsMetric(sentence)
		strength := "weak"
		if hasMetric {
			strength = "strong"
		}
		out = append(out, types.EvidenceItem{
			RequirementID: req.ID,
			Text:          sentence,
			HasMetric:     hasMetric,
			Strength:      strength,
			Source:        "resume",
		})
	}
	return out
}

// coverage is the fraction of requirements with at least one evidence item.
func coverage(bench *types.Benchmark, evidence []types.EvidenceItem) float64 {
	if len(bench.Requirements) == 0 {
		return 1
	}
	covered := map[string]bool{}
	for _, item := range evidence {
		covered[item.RequirementID] = true
	}
	n := 0
	for _, req := range bench.Requirements {
		if covered[req.ID] {
			n++
		}
	}
	return float64(n) / float64(len(bench.Requirements))
}

func splitSentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		for _, part := range strings.FieldsFunc(line, func(r rune) bool { return r == '.' || r == ';' }) {
			trimmed := strings.TrimSpace(part)
			if len(trimmed) > 10 {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

func containsMetric(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
