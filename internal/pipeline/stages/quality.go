package stages

import (
	"context"
	"strings"

	"github.com/jonathan/resume-author/internal/pipeline"
	"github.com/jonathan/resume-author/internal/types"
)

// QualityReport summarizes how well the reviewed draft covers the
// benchmark. It is advisory: quality never blocks export, it only records
// what a recruiter scan would notice.
type QualityReport struct {
	KeywordCoverage float64  `json:"keyword_coverage"`
	MissingKeywords []string `json:"missing_keywords"`
	MetricBullets   int      `json:"metric_bullets"`
	TotalBullets    int      `json:"total_bullets"`
	UnresolvedGaps  int      `json:"unresolved_gaps"`
}

// QualityStage scores the approved sections against the benchmark.
type QualityStage struct{}

func (s *QualityStage) Key() types.NodeKey { return types.NodeQuality }

func (s *QualityStage) Run(ctx context.Context, in *pipeline.StageInput) (*pipeline.Outcome, error) {
	bench, err := loadBenchmark(ctx, in.Store, in.Run.ID)
	if err != nil {
		return nil, err
	}
	sections, err := loadSections(ctx, in.Store, in.Run.ID)
	if err != nil {
		return nil, err
	}
	gaps, err := loadGaps(ctx, in.Store, in.Run.ID)
	if err != nil {
		return nil, err
	}

	report := Score(bench, sections, gaps)
	if err := in.Store.SaveArtifact(ctx, in.Run.ID, ArtifactQuality, report); err != nil {
		return nil, err
	}
	return pipeline.Done(), nil
}

// Score computes the quality report for a set of drafted sections.
func Score(bench *types.Benchmark, sections []types.Section, gaps []types.Gap) *QualityReport {
	var all strings.Builder
	for _, sec := range sections {
		all.WriteString(strings.ToLower(sec.Draft))
		all.WriteString("\n")
	}
	text := all.String()

	report := &QualityReport{
		MissingKeywords: []string{},
		UnresolvedGaps:  len(gaps),
	}
	found := 0
	for _, kw := range bench.Keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			found++
		} else {
			report.MissingKeywords = append(report.MissingKeywords, kw)
		}
	}
	if len(bench.Keywords) > 0 {
		report.KeywordCoverage = float64(found) / float64(len(bench.Keywords))
	} else {
		report.KeywordCoverage = 1
	}

	for _, sec := range sections {
		for _, line := range strings.Split(sec.Draft, "\n") {
			trimmed := strings.TrimSpace(line)
			if !strings.HasPrefix(trimmed, "-") {
				continue
			}
			report.TotalBullets++
			if containsMetric(trimmed) {
				report.MetricBullets++
			}
		}
	}
	return report
}
