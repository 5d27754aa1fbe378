package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/resume-author/internal/llm"
	"github.com/jonathan/resume-author/internal/types"
)

// draft produces a section draft, via the model when available and the
// deterministic composer otherwise.
func (s *SectionsStage) draft(ctx context.Context, plan types.SectionPlan, bench *types.Benchmark, evidence []types.EvidenceItem, resume string) string {
	if s.deps.LLM != nil {
		prompt := fmt.Sprintf(`Draft the %q section of a resume tailored to the role %q.
Purpose of the section: %s
Weave in these keywords where natural: %s

Source resume:
%s

Return only the section text, no heading.`,
			plan.Name, bench.RoleTitle, plan.Purpose, strings.Join(bench.Keywords, ", "), resume)
		if text, err := s.deps.LLM.GenerateText(ctx, prompt, llm.TierQuality); err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
	}
	return ComposeDraft(plan.Name, bench, evidence, resume)
}

// ComposeDraft is the deterministic drafter: it assembles each section from
// the benchmark and evidence without any model in the loop.
func ComposeDraft(section string, bench *types.Benchmark, evidence []types.EvidenceItem, resume string) string {
	switch strings.ToLower(section) {
	case "headline":
		role := bench.RoleTitle
		if role == "" {
			role = "Candidate"
		}
		return role
	case "summary":
		return composeSummary(bench, evidence)
	case "experience":
		return composeBullets(evidence, "resume")
	case "projects":
		return composeBullets(evidence, "interview")
	case "skills":
		if len(bench.Keywords) == 0 {
			return firstLines(resume, 2)
		}
		return strings.Join(bench.Keywords, " | ")
	default:
		return firstLines(resume, 3)
	}
}

func composeSummary(bench *types.Benchmark, evidence []types.EvidenceItem) string {
	var b strings.Builder
	role := bench.RoleTitle
	if role == "" {
		role = "the target role"
	}
	fmt.Fprintf(&b, "Engineer focused on %s.", role)
	strong := 0
	for _, item := range evidence {
		if item.Strength == "strong" {
			strong++
		}
	}
	if strong > 0 {
		fmt.Fprintf(&b, " Brings %d quantified achievements directly relevant to the posting.", strong)
	}
	return b.String()
}

func composeBullets(evidence []types.EvidenceItem, source string) string {
	var lines []string
	for _, item := range evidence {
		if item.Source != source {
			continue
		}
		lines = append(lines, "- "+item.Text)
	}
	if len(lines) == 0 {
		for _, item := range evidence {
			lines = append(lines, "- "+item.Text)
			if len(lines) == 3 {
				break
			}
		}
	}
	return strings.Join(lines, "\n")
}

func firstLines(text string, n int) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
		if len(out) == n {
			break
		}
	}
	return strings.Join(out, "\n")
}
