package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-author/internal/types"
)

const samplePosting = `Senior Platform Engineer
We run a large Kubernetes fleet.
- 5+ years of Go required
- Experience with PostgreSQL and Kafka
- Familiarity with Terraform is a plus
Perks include snacks.`

func TestParseBenchmark(t *testing.T) {
	bench := ParseBenchmark(samplePosting)

	assert.Equal(t, "Senior Platform Engineer", bench.RoleTitle)
	require.Len(t, bench.Requirements, 3)

	assert.Equal(t, "req_1", bench.Requirements[0].ID)
	assert.Equal(t, types.CriticalityMustHave, bench.Requirements[0].Criticality)
	assert.Contains(t, bench.Requirements[0].Keywords, "Go")

	assert.Equal(t, types.CriticalityMustHave, bench.Requirements[1].Criticality)
	assert.Contains(t, bench.Requirements[1].Keywords, "PostgreSQL")
	assert.Contains(t, bench.Requirements[1].Keywords, "Kafka")

	assert.Equal(t, types.CriticalityNiceToHave, bench.Requirements[2].Criticality)
	assert.Contains(t, bench.Requirements[2].Keywords, "Terraform")

	// Keywords deduplicated across requirements, noise lines skipped.
	assert.Contains(t, bench.Keywords, "Go")
	assert.NotContains(t, bench.Keywords, "snacks")
}

func TestParseBenchmarkStopwords(t *testing.T) {
	bench := ParseBenchmark("Role\n- Strong experience required with Redis")
	require.Len(t, bench.Requirements, 1)
	assert.Equal(t, []string{"Redis"}, bench.Requirements[0].Keywords)
}

func TestCriticalityOf(t *testing.T) {
	assert.Equal(t, types.CriticalityNiceToHave, criticalityOf("Kafka experience is a plus"))
	assert.Equal(t, types.CriticalityMustHave, criticalityOf("3 years of Go required"))
	assert.Equal(t, types.CriticalityImplicit, criticalityOf("Collaborate with designers"))
}
