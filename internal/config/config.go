package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "RALLYPOINT"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "rallypoint.db"
	defaultLogLevel      = "info"
	defaultIssuer        = "rallypoint-auth"
	defaultQuorum        = 0.5
	defaultPassThreshold = 0.6
	defaultRetentionHrs  = 168
	defaultTickPageSize  = 200
	defaultReadWindow    = 30
)

// defaultTierDefinitions mirrors the launch tier ladder; overridden via
// squads.tier_definitions as a JSON array.
const defaultTierDefinitions = `[{"tier":1,"min_points":1000,"max_members":50},{"tier":2,"min_points":5000,"max_members":100},{"tier":3,"min_points":10000,"max_members":200}]`

// TierDefinition describes one squad tier: the minimum squad point total that
// earns it and the member cap applied at join time.
type TierDefinition struct {
	Tier       int   `json:"tier"`
	MinPoints  int64 `json:"min_points"`
	MaxMembers int   `json:"max_members"`
}

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	DatabasePath    string
	LogLevel        string
	SigningSecret   string
	TokenIssuer     string
	QuorumThreshold float64
	PassThreshold   float64
	Retention       time.Duration
	TickPageSize    int
	TierDefinitions []TierDefinition
	ReadWindow      time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("governance.quorum_threshold", defaultQuorum)
	configViper.SetDefault("governance.pass_threshold", defaultPassThreshold)
	configViper.SetDefault("governance.retention_hours", defaultRetentionHrs)
	configViper.SetDefault("governance.tick_page_size", defaultTickPageSize)
	configViper.SetDefault("squads.tier_definitions", defaultTierDefinitions)
	configViper.SetDefault("notifications.read_window_days", defaultReadWindow)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabasePath:    configViper.GetString("database.path"),
		LogLevel:        configViper.GetString("log.level"),
		SigningSecret:   configViper.GetString("auth.signing_secret"),
		TokenIssuer:     configViper.GetString("auth.issuer"),
		QuorumThreshold: configViper.GetFloat64("governance.quorum_threshold"),
		PassThreshold:   configViper.GetFloat64("governance.pass_threshold"),
		Retention:       time.Duration(configViper.GetInt("governance.retention_hours")) * time.Hour,
		TickPageSize:    configViper.GetInt("governance.tick_page_size"),
		ReadWindow:      time.Duration(configViper.GetInt("notifications.read_window_days")) * 24 * time.Hour,
	}

	tiers, err := ParseTierDefinitions(configViper.GetString("squads.tier_definitions"))
	if err != nil {
		return AppConfig{}, err
	}
	cfg.TierDefinitions = tiers

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// ParseTierDefinitions decodes the JSON tier ladder and returns it ordered by
// ascending minimum points.
func ParseTierDefinitions(raw string) ([]TierDefinition, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("squads.tier_definitions is required")
	}

	var tiers []TierDefinition
	if err := json.Unmarshal([]byte(trimmed), &tiers); err != nil {
		return nil, fmt.Errorf("squads.tier_definitions is not valid JSON: %w", err)
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("squads.tier_definitions must list at least one tier")
	}
	for _, tier := range tiers {
		if tier.Tier <= 0 {
			return nil, fmt.Errorf("tier number must be positive, got %d", tier.Tier)
		}
		if tier.MinPoints < 0 {
			return nil, fmt.Errorf("tier %d min_points must not be negative", tier.Tier)
		}
	}

	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].MinPoints < tiers[j].MinPoints
	})
	return tiers, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.QuorumThreshold <= 0 || c.QuorumThreshold > 1 {
		return fmt.Errorf("governance.quorum_threshold must be in (0, 1]")
	}
	if c.PassThreshold <= 0 || c.PassThreshold > 1 {
		return fmt.Errorf("governance.pass_threshold must be in (0, 1]")
	}
	if c.TickPageSize <= 0 {
		return fmt.Errorf("governance.tick_page_size must be positive")
	}
	if c.Retention <= 0 {
		return fmt.Errorf("governance.retention_hours must be positive")
	}
	return nil
}
