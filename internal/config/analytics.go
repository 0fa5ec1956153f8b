package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// AnalyticsConfig holds tunables that can change without a restart.
type AnalyticsConfig struct {
	Throttle ThrottleConfig   `mapstructure:"throttle"`
	Sync     SyncTuningConfig `mapstructure:"sync"`
	Cohort   CohortTuning     `mapstructure:"cohort"`
}

type ThrottleConfig struct {
	RequestsPerSecond float64 `mapstructure:"requestsPerSecond"`
}

type SyncTuningConfig struct {
	Cooldown   time.Duration `mapstructure:"cooldown"`
	PageSize   int           `mapstructure:"pageSize"`
	EventTypes []string      `mapstructure:"eventTypes"`
}

type CohortTuning struct {
	MaxOffset int `mapstructure:"maxOffset"`
}

// DefaultEventTypes are the provider events kept as the audit trail.
var DefaultEventTypes = []string{
	"customer.subscription.created",
	"customer.subscription.updated",
	"customer.subscription.deleted",
	"customer.subscription.paused",
	"customer.subscription.resumed",
	"invoice.payment_failed",
	"invoice.paid",
	"customer.created",
	"customer.deleted",
}

func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		Throttle: ThrottleConfig{RequestsPerSecond: 4},
		Sync: SyncTuningConfig{
			Cooldown:   time.Hour,
			PageSize:   100,
			EventTypes: append([]string(nil), DefaultEventTypes...),
		},
		Cohort: CohortTuning{MaxOffset: 24},
	}
}

type AnalyticsConfigHolder struct {
	current atomic.Value // holds AnalyticsConfig
}

// NewStaticAnalyticsConfigHolder returns a holder that never reloads.
func NewStaticAnalyticsConfigHolder(cfg AnalyticsConfig) *AnalyticsConfigHolder {
	holder := &AnalyticsConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewAnalyticsConfigHolder(log *zap.Logger) (*AnalyticsConfigHolder, error) {
	log = log.Named("config.analytics")
	v := viper.New()

	v.SetConfigName("analytics")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/revlens/config")
	v.AddConfigPath("/etc/revlens")
	v.AddConfigPath(".")

	v.SetEnvPrefix("REVLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultAnalyticsConfig()
	v.SetDefault("analytics.throttle.requestsPerSecond", defaults.Throttle.RequestsPerSecond)
	v.SetDefault("analytics.sync.cooldown", defaults.Sync.Cooldown)
	v.SetDefault("analytics.sync.pageSize", defaults.Sync.PageSize)
	v.SetDefault("analytics.sync.eventTypes", defaults.Sync.EventTypes)
	v.SetDefault("analytics.cohort.maxOffset", defaults.Cohort.MaxOffset)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg AnalyticsConfig
	if err := v.UnmarshalKey("analytics", &cfg); err != nil {
		return nil, err
	}
	if err := validateAnalyticsConfig(cfg); err != nil {
		return nil, err
	}

	holder := &AnalyticsConfigHolder{}
	holder.current.Store(cfg)

	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated AnalyticsConfig
		if err := v.UnmarshalKey("analytics", &updated); err != nil {
			log.Warn("analytics config reload failed", zap.Error(err))
			return
		}
		if err := validateAnalyticsConfig(updated); err != nil {
			log.Warn("invalid analytics config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("analytics config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *AnalyticsConfigHolder) Get() AnalyticsConfig {
	return h.current.Load().(AnalyticsConfig)
}

func validateAnalyticsConfig(cfg AnalyticsConfig) error {
	if cfg.Throttle.RequestsPerSecond <= 0 {
		return errors.New("analytics.throttle.requestsPerSecond must be positive")
	}
	if cfg.Sync.Cooldown < 0 {
		return errors.New("analytics.sync.cooldown cannot be negative")
	}
	if cfg.Sync.PageSize <= 0 || cfg.Sync.PageSize > 100 {
		return errors.New("analytics.sync.pageSize must be within 1..100")
	}
	if len(cfg.Sync.EventTypes) == 0 {
		return errors.New("analytics.sync.eventTypes cannot be empty")
	}
	if cfg.Cohort.MaxOffset < 0 || cfg.Cohort.MaxOffset > 24 {
		return errors.New("analytics.cohort.maxOffset must be within 0..24")
	}
	return nil
}
