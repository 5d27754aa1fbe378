package llm

import "os"

// Tier selects how much model quality a call needs. Enrichment and short
// rewrites use the fast tier, full section drafts use the quality tier.
type Tier string

const (
	TierFast    Tier = "fast"
	TierQuality Tier = "quality"
)

// Config maps call tiers to concrete model names.
type Config struct {
	FastModel    string
	QualityModel string
}

// DefaultConfig reads model names from the environment, falling back to
// current Gemini defaults.
func DefaultConfig() *Config {
	return &Config{
		FastModel:    envOr("GEMINI_MODEL_FAST", "gemini-2.0-flash"),
		QualityModel: envOr("GEMINI_MODEL_QUALITY", "gemini-2.5-pro"),
	}
}

// Model returns the model name for a tier.
func (c *Config) Model(tier Tier) string {
	if tier == TierQuality {
		return c.QualityModel
	}
	return c.FastModel
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
