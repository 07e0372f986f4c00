package retrieveandgenerate

import (
	"fmt"
	"time"

	"kb-retrieval/internal/common/config"
)

type Config struct {
	Enabled         *bool         `mapstructure:"enabled"` // nil means enabled
	KnowledgeBaseID string        `mapstructure:"knowledge_base_id"`
	ModelARN        string        `mapstructure:"model_arn"`
	MaxJobsActive   int           `mapstructure:"max_jobs_active"`
	JobTimeout      time.Duration `mapstructure:"job_timeout"` // job worker only
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       boolPtr(true),
		ModelARN:      config.DefaultModelARN,
		MaxJobsActive: 5,
		JobTimeout:    30 * time.Second,
	}
}

// IsEnabled reports whether jobs are processed. An unset flag counts as on.
func (c *Config) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (c *Config) Validate() error {
	if c.KnowledgeBaseID == "" {
		return fmt.Errorf("knowledge_base_id is required")
	}
	if c.ModelARN == "" {
		return fmt.Errorf("model_arn is required")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("job_timeout must be positive")
	}
	return nil
}

// createConfigFromAppConfig starts from the defaults, applies the
// application config, then any set field of custom.
func createConfigFromAppConfig(appConfig *config.Config, custom *Config) *Config {
	cfg := DefaultConfig()

	if appConfig != nil {
		cfg.KnowledgeBaseID = appConfig.Bedrock.KnowledgeBaseID
		if appConfig.Bedrock.ModelARN != "" {
			cfg.ModelARN = appConfig.Bedrock.ModelARN
		}
		w := config.GetWorkerConfig(appConfig, TaskType)
		cfg.Enabled = boolPtr(w.Enabled)
		if w.MaxJobsActive > 0 {
			cfg.MaxJobsActive = w.MaxJobsActive
		}
		if w.Timeout > 0 {
			cfg.JobTimeout = config.GetDuration(w.Timeout)
		}
	}

	if custom != nil {
		if custom.Enabled != nil {
			cfg.Enabled = boolPtr(*custom.Enabled)
		}
		if custom.KnowledgeBaseID != "" {
			cfg.KnowledgeBaseID = custom.KnowledgeBaseID
		}
		if custom.ModelARN != "" {
			cfg.ModelARN = custom.ModelARN
		}
		if custom.MaxJobsActive > 0 {
			cfg.MaxJobsActive = custom.MaxJobsActive
		}
		if custom.JobTimeout > 0 {
			cfg.JobTimeout = custom.JobTimeout
		}
	}

	return cfg
}

func boolPtr(b bool) *bool {
	return &b
}
