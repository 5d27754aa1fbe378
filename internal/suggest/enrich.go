package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/resume-author/internal/llm"
	"github.com/jonathan/resume-author/internal/types"
)

// Enricher rewrites suggestion display text. Implementations must not add,
// remove, or reorder suggestions; identity and ranking belong to the
// deterministic pass.
type Enricher interface {
	Enrich(ctx context.Context, in Inputs, ranked []types.Suggestion) ([]types.Suggestion, error)
}

// LLMEnricher rewrites suggestion text with the model. Any enrichment that
// does not match an existing suggestion by ID is discarded.
type LLMEnricher struct {
	Client llm.Client
}

type enrichment struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Enrich asks the model for reviewer-facing phrasing of each suggestion.
func (e *LLMEnricher) Enrich(ctx context.Context, in Inputs, ranked []types.Suggestion) ([]types.Suggestion, error) {
	if e.Client == nil {
		return ranked, nil
	}

	prompt := buildEnrichPrompt(in, ranked)
	raw, err := e.Client.GenerateJSON(ctx, prompt, llm.TierFast)
	if err != nil {
		return nil, fmt.Errorf("failed to enrich suggestions: %w", err)
	}

	var items []enrichment
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("failed to parse enrichment response: %w", err)
	}

	byID := make(map[string]string, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Text) == "" {
			continue
		}
		byID[item.ID] = strings.TrimSpace(item.Text)
	}

	out := make([]types.Suggestion, len(ranked))
	copy(out, ranked)
	for i := range out {
		if text, ok := byID[out[i].ID]; ok {
			out[i].QuestionText = text
		}
	}
	return out, nil
}

func buildEnrichPrompt(in Inputs, ranked []types.Suggestion) string {
	var b strings.Builder
	b.WriteString("Rewrite each suggestion below as one concrete, actionable sentence for a resume reviewer.\n")
	b.WriteString("Return a JSON array of objects with fields \"id\" and \"text\". Keep every id unchanged.\n\n")
	fmt.Fprintf(&b, "Section: %s\n", in.Section)
	if in.SectionText != "" {
		fmt.Fprintf(&b, "Current draft:\n%s\n", in.SectionText)
	}
	b.WriteString("\nSuggestions:\n")
	for _, s := range ranked {
		fmt.Fprintf(&b, "- id=%s intent=%s target=%s: %s\n", s.ID, s.Intent, s.Target, s.QuestionText)
	}
	return b.String()
}
