package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/resume-author/internal/pipeline"
	"github.com/jonathan/resume-author/internal/types"
)

// ExportStage assembles the approved sections into the final document.
type ExportStage struct{}

func (s *ExportStage) Key() types.NodeKey { return types.NodeExport }

func (s *ExportStage) Run(ctx context.Context, in *pipeline.StageInput) (*pipeline.Outcome, error) {
	sections, err := loadSections(ctx, in.Store, in.Run.ID)
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("export has no sections to assemble")
	}

	doc := Assemble(sections)
	if err := in.Store.SaveTextArtifact(ctx, in.Run.ID, ArtifactResumeFinal, doc); err != nil {
		return nil, err
	}
	return pipeline.Done(), nil
}

// Assemble renders the sections as a markdown document in blueprint order.
// The headline becomes the title; every other section gets a heading.
func Assemble(sections []types.Section) string {
	var b strings.Builder
	for _, sec := range sections {
		if strings.TrimSpace(sec.Draft) == "" {
			continue
		}
		if strings.EqualFold(sec.Name, "headline") {
			fmt.Fprintf(&b, "# %s\n\n", sec.Draft)
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", title(sec.Name), sec.Draft)
	}
	return strings.TrimSpace(b.String()) + "\n"
}

func title(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
