package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// CollectionsConfig drives the receivables aging view. It is operational
// tuning, not billing policy, so unlike the overdue document it may be
// reloaded while the process runs.
type CollectionsConfig struct {
	AgingBuckets []AgingBucket `mapstructure:"agingBuckets"`
}

type AgingBucket struct {
	Label   string `mapstructure:"label"`
	MinDays int    `mapstructure:"minDays"`
	MaxDays *int   `mapstructure:"maxDays"`
}

func DefaultCollectionsConfig() CollectionsConfig {
	return CollectionsConfig{
		AgingBuckets: []AgingBucket{
			{Label: "0-30", MinDays: 0, MaxDays: intPtr(30)},
			{Label: "31-60", MinDays: 31, MaxDays: intPtr(60)},
			{Label: "60+", MinDays: 61, MaxDays: nil},
		},
	}
}

func intPtr(v int) *int { return &v }

type CollectionsConfigHolder struct {
	current atomic.Value // holds CollectionsConfig
}

func NewCollectionsConfigHolder() (*CollectionsConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("collections")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/duno/config") // Volume-mounted config
	v.AddConfigPath("/etc/duno")            // System config
	v.AddConfigPath(".")                    // Current directory (dev mode)

	v.SetEnvPrefix("DUNO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultCollectionsConfig()
		v.SetDefault("collections.agingBuckets", defaults.AgingBuckets)
	}

	var cfg CollectionsConfig
	if err := v.UnmarshalKey("collections", &cfg); err != nil {
		return nil, err
	}
	if len(cfg.AgingBuckets) == 0 {
		cfg = DefaultCollectionsConfig()
	}
	if err := validateCollectionsConfig(cfg); err != nil {
		return nil, err
	}

	holder := &CollectionsConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CollectionsConfig
		if err := v.UnmarshalKey("collections", &updated); err != nil {
			log.Printf("[collections-config] reload failed: %v", err)
			return
		}
		if err := validateCollectionsConfig(updated); err != nil {
			log.Printf("[collections-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[collections-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *CollectionsConfigHolder) Get() CollectionsConfig {
	return h.current.Load().(CollectionsConfig)
}

func validateCollectionsConfig(cfg CollectionsConfig) error {
	if len(cfg.AgingBuckets) == 0 {
		return errors.New("collections.agingBuckets cannot be empty")
	}
	for _, bucket := range cfg.AgingBuckets {
		if strings.TrimSpace(bucket.Label) == "" {
			return errors.New("collections.agingBuckets label cannot be empty")
		}
		if bucket.MaxDays != nil && *bucket.MaxDays < bucket.MinDays {
			return errors.New("collections.agingBuckets maxDays must be >= minDays")
		}
	}
	return nil
}
