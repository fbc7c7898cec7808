package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/fleetshuttle/router/internal/domain/shuttle"
)

// RoadServiceConfig configures the OSRM-compatible road-network adapter.
type RoadServiceConfig struct {
	BaseURLs    map[string]string `mapstructure:"baseURLs" validate:"required,min=1"`
	MaxRetries  int               `mapstructure:"maxRetries" validate:"gte=0"`
	BackoffBase string            `mapstructure:"backoffBase"`
}

// SolverConfig configures the VRP solver subprocess.
type SolverConfig struct {
	Command string   `mapstructure:"command" validate:"required"`
	Args    []string `mapstructure:"args"`
}

// ZoneFileConfig points at the GeoJSON-like zone polygon file for a given
// profile, read once at startup by internal/infrastructure/zonefile.
type ZoneFileConfig struct {
	Path string `mapstructure:"path"`
}

// Config is the top-level configuration for one shuttle-router run:
// operational profile, road-service/solver wiring, zone file, and logging.
type Config struct {
	Profile     shuttle.Profile   `mapstructure:"profile"`
	RoadService RoadServiceConfig `mapstructure:"roadService"`
	Solver      SolverConfig      `mapstructure:"solver"`
	ZoneFile    ZoneFileConfig    `mapstructure:"zoneFile"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// LoadConfig loads configuration with priority: environment variables (ST_
// prefix), then the named config file, then defaults.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/shuttle-router")
	}

	v.SetEnvPrefix("ST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	SetDefaults(&cfg)

	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// MustLoadConfig loads configuration and panics on error (for use in main.go).
func MustLoadConfig(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
