package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type ExtractionPrompts struct {
	Nodes string `toml:"nodes"`
	Edges string `toml:"edges"`
}

type DeduplicationPrompts struct {
	Nodes string `toml:"nodes"`
}

type ContradictionPrompts struct {
	Pairs string `toml:"pairs"`
}

type LLMConfig struct {
	Provider       string `toml:"provider"`
	Model          string `toml:"model"`
	EmbeddingModel string `toml:"embedding_model"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
}

type GraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

// ConfidenceConfig holds every tunable of the confidence algebra. Defaults
// come from DefaultConfidence; TOML values override field by field. Values
// are not range-checked at runtime; operators own sane configuration.
type ConfidenceConfig struct {
	InitialUserGiven       float64 `toml:"initial_user_given"`
	InitialInferred        float64 `toml:"initial_inferred"`
	InitialSystemSuggested float64 `toml:"initial_system_suggested"`

	UserReaffirmationBoost float64 `toml:"user_reaffirmation_boost"`
	UserReferenceBoost     float64 `toml:"user_reference_boost"`
	UserReasoningBoost     float64 `toml:"user_reasoning_boost"`
	NetworkSupportBoost    float64 `toml:"network_support_boost"`
	ReasoningUsageBoost    float64 `toml:"reasoning_usage_boost"`
	StructuralSupportBoost float64 `toml:"structural_support_boost"`
	IndirectSupportBoost   float64 `toml:"indirect_support_boost"`
	ConsistencyCheckBoost  float64 `toml:"consistency_check_boost"`
	ExternalCorroboration  float64 `toml:"external_corroboration_boost"`
	DuplicateFoundBoost    float64 `toml:"duplicate_found_boost"`

	ContradictionPenalty         float64 `toml:"contradiction_penalty"`
	RepeatedContradictionPenalty float64 `toml:"repeated_contradiction_penalty"`
	UserCorrectionPenalty        float64 `toml:"user_correction_penalty"`
	UserUncertaintyPenalty       float64 `toml:"user_uncertainty_penalty"`
	DormancyDecayPenalty         float64 `toml:"dormancy_decay_penalty"`
	ExtendedDormancyPenalty      float64 `toml:"extended_dormancy_penalty"`
	OrphanedEntityPenalty        float64 `toml:"orphaned_entity_penalty"`

	PropagationThreshold            float64 `toml:"propagation_threshold"`
	DirectConnectionBoostFactor     float64 `toml:"direct_connection_boost_factor"`
	StructuralSupportThreshold      float64 `toml:"structural_support_threshold"`
	StructuralSupportMinConnections int     `toml:"structural_support_min_connections"`
	NetworkReinforcementCap         float64 `toml:"network_reinforcement_cap"`
	NetworkSupportThreshold         float64 `toml:"network_support_threshold"`

	DormancyDays         int `toml:"dormancy_days"`
	ExtendedDormancyDays int `toml:"extended_dormancy_days"`

	// Reserved for a downstream archival policy; nothing in this service
	// deletes nodes based on it.
	DeletionConsiderationThreshold float64 `toml:"deletion_consideration_threshold"`

	CacheSize       int `toml:"cache_size"`
	CacheTTLMinutes int `toml:"cache_ttl_minutes"`
}

type SchedulerConfig struct {
	Enabled       bool     `toml:"enabled"`
	IntervalHours int      `toml:"interval_hours"`
	BatchSize     int      `toml:"batch_size"`
	GroupIDs      []string `toml:"group_ids"`
}

type Config struct {
	LLM           LLMConfig            `toml:"llm"`
	Graph         GraphConfig          `toml:"graph"`
	Confidence    ConfidenceConfig     `toml:"confidence"`
	Scheduler     SchedulerConfig      `toml:"scheduler"`
	Extraction    ExtractionPrompts    `toml:"extraction"`
	Deduplication DeduplicationPrompts `toml:"deduplication"`
	Contradiction ContradictionPrompts `toml:"contradiction"`
}

func DefaultConfidence() ConfidenceConfig {
	return ConfidenceConfig{
		InitialUserGiven:       0.8,
		InitialInferred:        0.5,
		InitialSystemSuggested: 0.4,

		UserReaffirmationBoost: 0.1,
		UserReferenceBoost:     0.05,
		UserReasoningBoost:     0.03,
		NetworkSupportBoost:    0.1,
		ReasoningUsageBoost:    0.05,
		StructuralSupportBoost: 0.05,
		IndirectSupportBoost:   0.03,
		ConsistencyCheckBoost:  0.02,
		ExternalCorroboration:  0.01,
		DuplicateFoundBoost:    0.1,

		ContradictionPenalty:         0.3,
		RepeatedContradictionPenalty: 0.15,
		UserCorrectionPenalty:        0.1,
		UserUncertaintyPenalty:       0.1,
		DormancyDecayPenalty:         0.05,
		ExtendedDormancyPenalty:      0.1,
		OrphanedEntityPenalty:        0.15,

		PropagationThreshold:            0.7,
		DirectConnectionBoostFactor:     0.1,
		StructuralSupportThreshold:      0.7,
		StructuralSupportMinConnections: 3,
		NetworkReinforcementCap:         0.2,
		NetworkSupportThreshold:         0.75,

		DormancyDays:         30,
		ExtendedDormancyDays: 90,

		DeletionConsiderationThreshold: 0.1,

		CacheSize:       4096,
		CacheTTLMinutes: 30,
	}
}

func DefaultScheduler() SchedulerConfig {
	return SchedulerConfig{
		Enabled:       true,
		IntervalHours: 24,
		BatchSize:     100,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Config{
		Confidence: DefaultConfidence(),
		Scheduler:  DefaultScheduler(),
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return &cfg, nil
}
