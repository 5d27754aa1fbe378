// Package stages implements the eight pipeline stages. Each stage follows
// the same pattern: load upstream artifacts, do its work, and either finish
// or suspend at a gate. Model calls are best-effort everywhere; every stage
// has a deterministic path that produces usable output without one.
package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/resume-author/internal/bundles"
	"github.com/jonathan/resume-author/internal/db"
	"github.com/jonathan/resume-author/internal/fetch"
	"github.com/jonathan/resume-author/internal/llm"
	"github.com/jonathan/resume-author/internal/pipeline"
	"github.com/jonathan/resume-author/internal/suggest"
	"github.com/jonathan/resume-author/internal/types"
)

// Artifact step names shared across stages.
const (
	ArtifactIntake      = "intake"
	ArtifactResume      = "resume"
	ArtifactPosting     = "posting"
	ArtifactBenchmark   = "benchmark"
	ArtifactEvidence    = "evidence"
	ArtifactGaps        = "gaps"
	ArtifactBlueprint   = "blueprint"
	ArtifactSections    = "sections"
	ArtifactQuality     = "quality_report"
	ArtifactResumeFinal = "resume_final"
)

// DefaultReadinessThreshold is the research coverage below which the
// pipeline pauses at a readiness gate instead of advancing silently.
const DefaultReadinessThreshold = 0.6

// IntakeInput is the client-provided payload a run starts from, stored as
// the intake artifact before the first kick.
type IntakeInput struct {
	ResumeText  string `json:"resume_text"`
	PostingURL  string `json:"posting_url,omitempty"`
	PostingText string `json:"posting_text,omitempty"`
}

// Deps carries the collaborators stages share. LLM may be nil.
type Deps struct {
	LLM                llm.Client
	Fetcher            *fetch.Fetcher
	Suggest            *suggest.Engine
	Policy             bundles.Policy
	ReadinessThreshold float64
}

// Registry builds the stage map the controller is wired with.
func Registry(d Deps) map[types.NodeKey]pipeline.Stage {
	if d.Suggest == nil {
		var enricher suggest.Enricher
		if d.LLM != nil {
			enricher = &suggest.LLMEnricher{Client: d.LLM}
		}
		d.Suggest = suggest.NewEngine(enricher)
	}
	if d.Fetcher == nil {
		d.Fetcher = fetch.NewFetcher(false)
	}
	if d.ReadinessThreshold <= 0 {
		d.ReadinessThreshold = DefaultReadinessThreshold
	}
	if d.Policy.Strategy == "" {
		d.Policy = bundles.DefaultPolicy()
	}
	return map[types.NodeKey]pipeline.Stage{
		types.NodeIntake:      &IntakeStage{deps: d},
		types.NodeResearch:    &ResearchStage{deps: d},
		types.NodeGapAnalysis: &GapAnalysisStage{},
		types.NodeInterview:   &InterviewStage{},
		types.NodeBlueprint:   &BlueprintStage{deps: d},
		types.NodeSections:    &SectionsStage{deps: d},
		types.NodeQuality:     &QualityStage{},
		types.NodeExport:      &ExportStage{},
	}
}

func loadJSON(ctx context.Context, store db.Store, runID uuid.UUID, step string, out any) error {
	raw, err := store.GetArtifact(ctx, runID, step)
	if err != nil {
		return fmt.Errorf("failed to load %s artifact: %w", step, err)
	}
	if raw == nil {
		return fmt.Errorf("%s artifact not found", step)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s artifact: %w", step, err)
	}
	return nil
}

func loadBenchmark(ctx context.Context, store db.Store, runID uuid.UUID) (*types.Benchmark, error) {
	var bench types.Benchmark
	if err := loadJSON(ctx, store, runID, ArtifactBenchmark, &bench); err != nil {
		return nil, err
	}
	return &bench, nil
}

func loadEvidence(ctx context.Context, store db.Store, runID uuid.UUID) ([]types.EvidenceItem, error) {
	var items []types.EvidenceItem
	if err := loadJSON(ctx, store, runID, ArtifactEvidence, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func loadGaps(ctx context.Context, store db.Store, runID uuid.UUID) ([]types.Gap, error) {
	var gaps []types.Gap
	if err := loadJSON(ctx, store, runID, ArtifactGaps, &gaps); err != nil {
		return nil, err
	}
	return gaps, nil
}

// loadSections returns the reviewed sections. A force-advanced run skips
// the finalize step that writes the artifact, so the fallback reads the
// review state persisted on the sections node and takes the drafts as they
// stand.
func loadSections(ctx context.Context, store db.Store, runID uuid.UUID) ([]types.Section, error) {
	raw, err := store.GetArtifact(ctx, runID, ArtifactSections)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s artifact: %w", ArtifactSections, err)
	}
	var sections []types.Section
	if raw != nil {
		if err := json.Unmarshal(raw, &sections); err != nil {
			return nil, fmt.Errorf("failed to decode %s artifact: %w", ArtifactSections, err)
		}
		return sections, nil
	}

	node, err := store.GetNode(ctx, runID, types.NodeSections)
	if err != nil {
		return nil, err
	}
	ok, err := node.MetaValue(metaSections, &sections)
	if err != nil {
		return nil, err
	}
	if !ok || len(sections) == 0 {
		return nil, fmt.Errorf("no drafted sections found for run %s", runID)
	}
	for i := range sections {
		sections[i].Approved = true
	}
	return sections, nil
}
