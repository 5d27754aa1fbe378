package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jonathan/resume-author/internal/llm"
	"github.com/jonathan/resume-author/internal/pipeline"
	"github.com/jonathan/resume-author/internal/types"
)

// IntakeStage ingests the resume and job posting and builds the initial
// benchmark model every downstream stage works against.
type IntakeStage struct {
	deps Deps
}

func (s *IntakeStage) Key() types.NodeKey { return types.NodeIntake }

func (s *IntakeStage) Run(ctx context.Context, in *pipeline.StageInput) (*pipeline.Outcome, error) {
	var input IntakeInput
	if err := loadJSON(ctx, in.Store, in.Run.ID, ArtifactIntake, &input); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.ResumeText) == "" {
		return nil, fmt.Errorf("intake requires resume text")
	}

	posting := input.PostingText
	if posting == "" && input.PostingURL != "" {
		text, err := s.deps.Fetcher.PostingText(ctx, input.PostingURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch posting: %w", err)
		}
		posting = text
	}
	if strings.TrimSpace(posting) == "" {
		return nil, fmt.Errorf("intake requires a posting URL or posting text")
	}

	if err := in.Store.SaveTextArtifact(ctx, in.Run.ID, ArtifactResume, input.ResumeText); err != nil {
		return nil, err
	}
	if err := in.Store.SaveTextArtifact(ctx, in.Run.ID, ArtifactPosting, posting); err != nil {
		return nil, err
	}

	bench := s.extractBenchmark(ctx, posting)
	if err := in.Store.SaveArtifact(ctx, in.Run.ID, ArtifactBenchmark, bench); err != nil {
		return nil, err
	}
	return pipeline.Done(), nil
}

// extractBenchmark builds the benchmark from the posting, preferring the
// model and falling back to the heuristic parser.
func (s *IntakeStage) extractBenchmark(ctx context.Context, posting string) *types.Benchmark {
	if s.deps.LLM != nil {
		if bench, err := extractBenchmarkLLM(ctx, s.deps.LLM, posting); err == nil {
			return bench
		}
	}
	return ParseBenchmark(posting)
}

func extractBenchmarkLLM(ctx context.Context, client llm.Client, posting string) (*types.Benchmark, error) {
	prompt := fmt.Sprintf(`Extract the hiring benchmark from this job posting.
Return JSON: {"role_title": string, "company": string,
"requirements": [{"id": "req_N", "text": string, "criticality": "must_have"|"nice_to_have"|"implicit", "keywords": [string]}],
"keywords": [string]}

Posting:
%s`, posting)
	raw, err := client.GenerateJSON(ctx, prompt, llm.TierFast)
	if err != nil {
		return nil, err
	}
	var bench types.Benchmark
	if err := json.Unmarshal([]byte(raw), &bench); err != nil {
		return nil, fmt.Errorf("failed to parse benchmark extraction: %w", err)
	}
	if len(bench.Requirements) == 0 {
		return nil, fmt.Errorf("benchmark extraction returned no requirements")
	}
	return &bench, nil
}

var (
	bulletRe = regexp.MustCompile(`^\s*[-*•]\s*(.+)$`)
	techRe   = regexp.MustCompile(`\b([A-Z][A-Za-z0-9+#.]{1,20}|[a-z]+[A-Z][A-Za-z]*)\b`)
)

// ParseBenchmark is the deterministic posting parser: bullet lines and
// requirement-shaped sentences become requirements, capitalized technology
// terms become keywords.
func ParseBenchmark(posting string) *types.Benchmark {
	lines := strings.Split(posting, "\n")
	bench := &types.Benchmark{}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if bench.RoleTitle == "" {
			bench.RoleTitle = trimmed
			continue
		}
		text := trimmed
		if m := bulletRe.FindStringSubmatch(trimmed); m != nil {
			text = m[1]
		} else if !looksLikeRequirement(trimmed) {
			continue
		}
		req := types.Requirement{
			ID:          fmt.Sprintf("req_%d", len(bench.Requirements)+1),
			Text:        text,
			Criticality: criticalityOf(text),
			Keywords:    keywordsOf(text),
		}
		bench.Requirements = append(bench.Requirements, req)
	}

	seen := map[string]bool{}
	for _, req := range bench.Requirements {
		for _, kw := range req.Keywords {
			if !seen[strings.ToLower(kw)] {
				seen[strings.ToLower(kw)] = true
				bench.Keywords = append(bench.Keywords, kw)
			}
		}
	}
	return bench
}

func looksLikeRequirement(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range []string{"years", "experience", "required", "must", "proficien", "familiar", "knowledge of"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func criticalityOf(text string) types.Criticality {
	lower := strings.ToLower(text)
	for _, marker := range []string{"preferred", "nice to have", "plus", "bonus"} {
		if strings.Contains(lower, marker) {
			return types.CriticalityNiceToHave
		}
	}
	for _, marker := range []string{"must", "required", "years"} {
		if strings.Contains(lower, marker) {
			return types.CriticalityMustHave
		}
	}
	return types.CriticalityImplicit
}

var keywordStop = map[string]bool{
	"experience": true, "years": true, "must": true, "required": true,
	"preferred": true, "strong": true, "ability": true, "knowledge": true,
	"the": true, "a": true, "an": true, "and": true, "or": true, "with": true,
}

func keywordsOf(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range techRe.FindAllString(text, -1) {
		lower := strings.ToLower(m)
		if keywordStop[lower] || seen[lower] || len(m) < 2 {
			continue
		}
		seen[lower] = true
		out = append(out, m)
	}
	return out
}
