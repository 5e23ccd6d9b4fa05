// Package config provides configuration loading for marginalia.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/marginalia/internal/analysis"
	"github.com/fyrsmithlabs/marginalia/internal/cache"
	"github.com/fyrsmithlabs/marginalia/internal/enrichment"
	"github.com/fyrsmithlabs/marginalia/internal/llm"
	"github.com/fyrsmithlabs/marginalia/internal/logging"
	"github.com/fyrsmithlabs/marginalia/internal/metadata"
	"github.com/fyrsmithlabs/marginalia/internal/retrieval"
)

// Config is the root configuration, one section per subsystem.
type Config struct {
	Logging    logging.Config    `koanf:"logging"`
	Enrichment enrichment.Config `koanf:"enrichment"`
	Metadata   metadata.Config   `koanf:"metadata"`
	Cache      cache.Config      `koanf:"cache"`
	LLM        llm.Config        `koanf:"llm"`
	Retrieval  retrieval.Config  `koanf:"retrieval"`
	Analysis   analysis.Config   `koanf:"analysis"`
	Taxonomy   TaxonomyConfig    `koanf:"taxonomy"`
	Corpus     CorpusConfig      `koanf:"corpus"`
	Output     OutputConfig      `koanf:"output"`
}

// TaxonomyConfig locates the concept taxonomy.
type TaxonomyConfig struct {
	// Path is the taxonomy JSON file.
	Path string `koanf:"path"`

	// Watch enables hot reload when the taxonomy file changes.
	Watch bool `koanf:"watch"`
}

// CorpusConfig locates the book corpus.
type CorpusConfig struct {
	// Dir holds one JSON document per book.
	Dir string `koanf:"dir"`
}

// OutputConfig controls where artifacts are written.
type OutputConfig struct {
	// Dir receives enriched documents and annotations.
	Dir string `koanf:"dir"`
}

// applyDefaults fills zero-valued fields with subsystem defaults.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	def := enrichment.DefaultConfig()
	if cfg.Enrichment.SimilarityThreshold == 0 {
		cfg.Enrichment.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.Enrichment.TopK == 0 {
		cfg.Enrichment.TopK = def.TopK
	}
	if cfg.Enrichment.MaxKeywords == 0 {
		cfg.Enrichment.MaxKeywords = def.MaxKeywords
	}

	mdef := metadata.DefaultConfig()
	if cfg.Metadata.TierBoostStep == 0 {
		cfg.Metadata.TierBoostStep = mdef.TierBoostStep
	}
	if cfg.Metadata.CascadeBonus == 0 {
		cfg.Metadata.CascadeBonus = mdef.CascadeBonus
	}
	if cfg.Metadata.CascadeDepth == 0 {
		cfg.Metadata.CascadeDepth = mdef.CascadeDepth
	}
	if cfg.Metadata.MatchesPerConcept == 0 {
		cfg.Metadata.MatchesPerConcept = mdef.MatchesPerConcept
	}

	cdef := cache.DefaultConfig()
	if cfg.Cache.TTLs == nil {
		cfg.Cache.TTLs = cdef.TTLs
	}
	if cfg.Cache.Dir == "" {
		if base, err := os.UserCacheDir(); err == nil {
			cfg.Cache.Dir = filepath.Join(base, "marginalia")
		}
	}

	if cfg.Retrieval.MaxExcerptChars == 0 {
		cfg.Retrieval.MaxExcerptChars = retrieval.DefaultConfig().MaxExcerptChars
	}
	if cfg.Analysis.MaxChapterChars == 0 {
		cfg.Analysis.MaxChapterChars = analysis.DefaultConfig().MaxChapterChars
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "enriched"
	}
}

// Validate checks cross-field invariants. Subsystem constructors revalidate
// their own sections.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Enrichment.SimilarityThreshold < 0 || c.Enrichment.SimilarityThreshold > 1 {
		return fmt.Errorf("enrichment: similarity threshold %.2f outside [0,1]", c.Enrichment.SimilarityThreshold)
	}
	if c.Enrichment.TopK < 0 {
		return fmt.Errorf("enrichment: top_k %d must not be negative", c.Enrichment.TopK)
	}
	if c.Cache.Enabled && c.Cache.Dir == "" {
		return fmt.Errorf("cache: dir is required when cache is enabled")
	}
	return nil
}
