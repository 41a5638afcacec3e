package config

import (
	"time"

	"github.com/spf13/viper"
)

// EngineConfig tunes the stats refresh orchestrator and consolidation engine.
type EngineConfig struct {
	// StatsBatchSize is how many cards one refresh batch contains.
	StatsBatchSize int
	// StatsWorkers bounds the concurrent per-card refreshes inside a batch.
	StatsWorkers int
	// SummaryTolerance is the largest per-bucket difference (in cents)
	// accepted between a caller-supplied consolidation summary and the
	// recomputed one.
	SummaryTolerance int64
	// StatsCacheTTL is how long cached snapshots live.
	StatsCacheTTL time.Duration
	// EventsChannel is the pub/sub channel domain events are published on.
	EventsChannel string
}

// LoadEngineConfig returns engine tuning with defaults.
func LoadEngineConfig() *EngineConfig {
	viper.SetDefault("engine.stats_batch_size", 10)
	viper.SetDefault("engine.stats_workers", 5)
	viper.SetDefault("engine.summary_tolerance", 0)
	viper.SetDefault("engine.stats_cache_ttl", 5*time.Minute)
	viper.SetDefault("engine.events_channel", "loopcard.events")

	return &EngineConfig{
		StatsBatchSize:   viper.GetInt("engine.stats_batch_size"),
		StatsWorkers:     viper.GetInt("engine.stats_workers"),
		SummaryTolerance: viper.GetInt64("engine.summary_tolerance"),
		StatsCacheTTL:    viper.GetDuration("engine.stats_cache_ttl"),
		EventsChannel:    viper.GetString("engine.events_channel"),
	}
}

// SupplierConfig configures the upstream card-provider sync job.
type SupplierConfig struct {
	BaseURL     string
	APIKey      string
	HTTPTimeout time.Duration
}

// LoadSupplierConfig returns provider sync settings with defaults.
func LoadSupplierConfig() *SupplierConfig {
	viper.SetDefault("supplier.base_url", "http://localhost:9090")
	viper.SetDefault("supplier.http_timeout", 30*time.Second)

	return &SupplierConfig{
		BaseURL:     viper.GetString("supplier.base_url"),
		APIKey:      viper.GetString("supplier.api_key"),
		HTTPTimeout: viper.GetDuration("supplier.http_timeout"),
	}
}
