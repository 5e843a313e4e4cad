package model

import "time"

// Config is the complete runtime configuration
type Config struct {
	Store       StoreConfig       `yaml:"store" json:"store"`
	Vocab       VocabConfig       `yaml:"vocab" json:"vocab"`
	Classifier  ClassifierConfig  `yaml:"classifier" json:"classifier"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" json:"concurrency"`
	Merge       MergeConfig       `yaml:"merge" json:"merge"`
	Output      OutputConfig      `yaml:"output" json:"output"`
}

// StoreConfig configures the item/EF store
type StoreConfig struct {
	// Driver is "sqlite" or "memory"
	Driver string `yaml:"driver" json:"driver"`

	// DataDir holds the sqlite database (default ~/.storyline/data)
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// VocabConfig locates the vocabulary and reference data files
type VocabConfig struct {
	// Dir contains go vocabulary YAML files plus stop.yaml and entities.yaml
	Dir string `yaml:"dir" json:"dir"`
}

// ClassifierConfig configures the external yes/no classifier
type ClassifierConfig struct {
	// Provider name: "openai", "" (disabled)
	Provider string `yaml:"provider" json:"provider"`

	// Model name (provider-specific)
	Model string `yaml:"model" json:"model"`

	// APIKey for the provider
	APIKey string `yaml:"api_key,omitempty" json:"-"`

	// BaseURL for custom endpoints
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// Timeout per call, seconds
	Timeout int `yaml:"timeout" json:"timeout"`

	// RequestsPerSecond throttles outbound calls
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`

	// CacheTTL for verdict caching
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// ConcurrencyConfig bounds parallel work within a pass
type ConcurrencyConfig struct {
	// Workers for CPU-bound per-item work
	Workers int `yaml:"workers" json:"workers"`

	// MaxInFlightCalls bounds concurrent external classifier calls
	MaxInFlightCalls int `yaml:"max_in_flight_calls" json:"max_in_flight_calls"`
}

// MergeConfig tunes the EF merge engine
type MergeConfig struct {
	// FragmentThreshold: a (theater, event type) group with at least this
	// many active families is treated as fragmented
	FragmentThreshold int `yaml:"fragment_threshold" json:"fragment_threshold"`

	// MaxCandidates validated per item during assignment
	MaxCandidates int `yaml:"max_candidates" json:"max_candidates"`
}

// OutputConfig controls CLI output
type OutputConfig struct {
	Verbose bool `yaml:"verbose" json:"verbose"`
	JSON    bool `yaml:"json" json:"json"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Vocab: VocabConfig{
			Dir: "vocab",
		},
		Classifier: ClassifierConfig{
			Provider:          "", // Disabled by default; validation fails closed without one
			Model:             "",
			Timeout:           30,
			RequestsPerSecond: 5,
			CacheTTL:          24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers:          4,
			MaxInFlightCalls: 8,
		},
		Merge: MergeConfig{
			FragmentThreshold: 2,
			MaxCandidates:     5,
		},
		Output: OutputConfig{},
	}
}
