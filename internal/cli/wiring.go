package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/storylinehq/storyline/internal/assign"
	"github.com/storylinehq/storyline/internal/cache"
	"github.com/storylinehq/storyline/internal/classify"
	"github.com/storylinehq/storyline/internal/enrich"
	"github.com/storylinehq/storyline/internal/merge"
	"github.com/storylinehq/storyline/internal/model"
	"github.com/storylinehq/storyline/internal/orchestrate"
	"github.com/storylinehq/storyline/internal/store"
	"github.com/storylinehq/storyline/internal/store/memory"
	"github.com/storylinehq/storyline/internal/store/sqlite"
	"github.com/storylinehq/storyline/internal/theater"
	"github.com/storylinehq/storyline/internal/vocab"
)

// loadConfig merges defaults, the config file, and STORYLINE_* env
// vars into one Config. API keys come from the environment only.
func loadConfig() *model.Config {
	cfg := model.DefaultConfig()

	setString := func(key string, dst *string) {
		if viper.IsSet(key) {
			*dst = viper.GetString(key)
		}
	}
	setInt := func(key string, dst *int) {
		if viper.IsSet(key) {
			*dst = viper.GetInt(key)
		}
	}

	setString("store.driver", &cfg.Store.Driver)
	setString("store.data_dir", &cfg.Store.DataDir)
	setString("vocab.dir", &cfg.Vocab.Dir)
	setString("classifier.provider", &cfg.Classifier.Provider)
	setString("classifier.model", &cfg.Classifier.Model)
	setString("classifier.base_url", &cfg.Classifier.BaseURL)
	setInt("classifier.timeout", &cfg.Classifier.Timeout)
	setInt("concurrency.workers", &cfg.Concurrency.Workers)
	setInt("concurrency.max_in_flight_calls", &cfg.Concurrency.MaxInFlightCalls)
	setInt("merge.fragment_threshold", &cfg.Merge.FragmentThreshold)
	setInt("merge.max_candidates", &cfg.Merge.MaxCandidates)
	if viper.IsSet("classifier.requests_per_second") {
		cfg.Classifier.RequestsPerSecond = viper.GetFloat64("classifier.requests_per_second")
	}
	if viper.IsSet("classifier.cache_ttl") {
		cfg.Classifier.CacheTTL = viper.GetDuration("classifier.cache_ttl")
	}

	cfg.Classifier.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Output.Verbose = verbose
	cfg.Output.JSON = jsonOut

	return cfg
}

// newLogger builds the zap logger the engine packages share.
func newLogger() (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{"stderr"}
	if verbose {
		logCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return logCfg.Build()
}

// engine bundles everything a command needs.
type engine struct {
	cfg   *model.Config
	log   *zap.Logger
	store store.Store
	orch  *orchestrate.Orchestrator
}

// close releases the engine's resources.
func (e *engine) close() {
	_ = e.log.Sync()
	if err := e.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: closing store: %v\n", err)
	}
}

// buildEngine constructs every component explicitly, once, and wires
// them together. Vocabulary loading happens here with real error
// semantics instead of on first use.
func buildEngine() (*engine, error) {
	cfg := loadConfig()

	log, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	provider := vocab.NewFileProvider(cfg.Vocab.Dir)
	goGroups, err := provider.LoadGoVocabularies()
	if err != nil {
		return nil, fmt.Errorf("loading go vocabularies: %w", err)
	}
	stopGroup, err := provider.LoadStopVocabulary()
	if err != nil {
		return nil, fmt.Errorf("loading stop vocabulary: %w", err)
	}
	meta, err := provider.LoadEntityMetadata()
	if err != nil {
		return nil, fmt.Errorf("loading entity metadata: %w", err)
	}

	enricher := enrich.NewEnricher(meta, log)
	matcher, err := vocab.NewMatcher(goGroups, stopGroup, enricher, log)
	if err != nil {
		return nil, fmt.Errorf("compiling vocabularies: %w", err)
	}
	theaters := theater.NewEngine(log)

	var st store.Store
	switch cfg.Store.Driver {
	case "memory":
		st = memory.NewStore()
	case "sqlite", "":
		st, err = sqlite.NewStore(cfg.Store.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown store driver: %s (supported: sqlite, memory)", cfg.Store.Driver)
	}

	verdicts := cache.NewMemoryCache(cfg.Classifier.CacheTTL, 10*time.Minute)
	classifier, err := classify.New(cfg.Classifier, verdicts)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("building classifier: %w", err)
	}
	gate := classify.NewGate(cfg.Concurrency.MaxInFlightCalls, cfg.Classifier.RequestsPerSecond)

	assigner := assign.NewAssigner(st, classifier, gate, cfg.Merge.MaxCandidates, log)
	seeder := assign.NewSeeder(st, log)
	merger := merge.NewEngine(st, cfg.Merge.FragmentThreshold, log)

	orch := orchestrate.New(st, matcher, theaters, assigner, seeder, merger,
		cfg.Concurrency.Workers, log)

	return &engine{cfg: cfg, log: log, store: st, orch: orch}, nil
}
