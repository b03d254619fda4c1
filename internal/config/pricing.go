package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LimitUnlimited marks a tier limit with no cap. It is distinct from zero,
// which means "none allowed".
const LimitUnlimited = -1

// TierLimits holds the resolved per-tier usage caps.
type TierLimits struct {
	MaxSavedMaps       int `mapstructure:"maxSavedMaps" json:"max_saved_maps"`
	MaxDocumentImports int `mapstructure:"maxDocumentImports" json:"max_document_imports"`
}

// PricingConfig is the credit-cost table plus tier allotments and limits.
// Credit costs are a fixed lookup, never computed.
type PricingConfig struct {
	CreditCosts       map[string]int        `mapstructure:"creditCosts"`
	TierAllotments    map[string]int        `mapstructure:"tierAllotments"`
	PackCredits       map[string]int        `mapstructure:"packCredits"`
	TierLimits        map[string]TierLimits `mapstructure:"tierLimits"`
	PremiumOperations []string              `mapstructure:"premiumOperations"`
}

func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		CreditCosts: map[string]int{
			"ai_generate":            10,
			"ai_chat":                1,
			"ai_analyze":             5,
			"ai_merge":               5,
			"import_document":        5,
			"import_document_vision": 10,
			"import_url":             3,
			"resume_generate":        15,
		},
		TierAllotments: map[string]int{
			"free":    25,
			"pro":     500,
			"premium": 1500,
		},
		PackCredits: map[string]int{
			"pack_small":  100,
			"pack_medium": 500,
			"pack_large":  1500,
		},
		TierLimits: map[string]TierLimits{
			"free":    {MaxSavedMaps: 3, MaxDocumentImports: 5},
			"pro":     {MaxSavedMaps: 20, MaxDocumentImports: LimitUnlimited},
			"premium": {MaxSavedMaps: LimitUnlimited, MaxDocumentImports: LimitUnlimited},
		},
		PremiumOperations: []string{"ai_merge", "resume_generate"},
	}
}

// PricingHolder serves the current pricing config and hot-reloads it when the
// backing file changes.
type PricingHolder struct {
	current atomic.Value // holds PricingConfig
}

func NewPricingHolder() (*PricingHolder, error) {
	v := viper.New()

	v.SetConfigName("pricing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/pathlight/config")
	v.AddConfigPath("/etc/pathlight")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PATHLIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPricingConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("pricing.creditCosts", defaults.CreditCosts)
		v.SetDefault("pricing.tierAllotments", defaults.TierAllotments)
		v.SetDefault("pricing.packCredits", defaults.PackCredits)
		v.SetDefault("pricing.tierLimits", defaults.TierLimits)
		v.SetDefault("pricing.premiumOperations", defaults.PremiumOperations)
	}

	var cfg PricingConfig
	if err := v.UnmarshalKey("pricing", &cfg); err != nil {
		return nil, err
	}
	cfg = mergePricingDefaults(cfg, defaults)
	if err := validatePricingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PricingHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PricingConfig
		if err := v.UnmarshalKey("pricing", &updated); err != nil {
			log.Printf("[pricing-config] reload failed: %v", err)
			return
		}
		updated = mergePricingDefaults(updated, defaults)
		if err := validatePricingConfig(updated); err != nil {
			log.Printf("[pricing-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[pricing-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticPricingHolder returns a holder pinned to cfg. Test seam.
func NewStaticPricingHolder(cfg PricingConfig) *PricingHolder {
	holder := &PricingHolder{}
	holder.current.Store(mergePricingDefaults(cfg, DefaultPricingConfig()))
	return holder
}

func (h *PricingHolder) Get() PricingConfig {
	return h.current.Load().(PricingConfig)
}

func mergePricingDefaults(cfg, defaults PricingConfig) PricingConfig {
	if len(cfg.CreditCosts) == 0 {
		cfg.CreditCosts = defaults.CreditCosts
	}
	if len(cfg.TierAllotments) == 0 {
		cfg.TierAllotments = defaults.TierAllotments
	}
	if len(cfg.PackCredits) == 0 {
		cfg.PackCredits = defaults.PackCredits
	}
	if len(cfg.TierLimits) == 0 {
		cfg.TierLimits = defaults.TierLimits
	}
	if len(cfg.PremiumOperations) == 0 {
		cfg.PremiumOperations = defaults.PremiumOperations
	}
	return cfg
}

func validatePricingConfig(cfg PricingConfig) error {
	if len(cfg.CreditCosts) == 0 {
		return errors.New("pricing.creditCosts cannot be empty")
	}
	for op, cost := range cfg.CreditCosts {
		if cost < 0 {
			return errors.New("pricing.creditCosts." + op + " cannot be negative")
		}
	}
	if len(cfg.TierAllotments) == 0 {
		return errors.New("pricing.tierAllotments cannot be empty")
	}
	for tier, allotment := range cfg.TierAllotments {
		if allotment < 0 {
			return errors.New("pricing.tierAllotments." + tier + " cannot be negative")
		}
	}
	for pack, credits := range cfg.PackCredits {
		if credits <= 0 {
			return errors.New("pricing.packCredits." + pack + " must be positive")
		}
	}
	return nil
}
