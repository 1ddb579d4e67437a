package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings loaded from the YAML file and
// environment overrides.
type Config struct {
	GatewayPort        string   `yaml:"gatewayPort" env:"NEAR_RPC_GATEWAY_PORT"`
	MetricsPort        string   `yaml:"metricsPort" env:"NEAR_RPC_METRICS_PORT"`
	CheckIntervalStr   string   `yaml:"checkInterval" env:"NEAR_RPC_CHECK_INTERVAL"`
	RequestTimeoutStr  string   `yaml:"requestTimeout" env:"NEAR_RPC_REQUEST_TIMEOUT"`
	ProbeTimeoutStr    string   `yaml:"probeTimeout" env:"NEAR_RPC_PROBE_TIMEOUT"`
	RefreshCooldownStr string   `yaml:"refreshCooldown" env:"NEAR_RPC_REFRESH_COOLDOWN"`
	PollIntervalStr    string   `yaml:"pollInterval" env:"NEAR_RPC_POLL_INTERVAL"`
	ProbeConcurrency   int      `yaml:"probeConcurrency" env:"NEAR_RPC_PROBE_CONCURRENCY" validate:"gte=0"`
	RpcEndpoints       []string `yaml:"rpcEndpoints" env:"NEAR_RPC_ENDPOINTS" env-separator:"," validate:"required,min=1,dive,url"`
	LogLevel           string   `yaml:"logLevel" env:"NEAR_RPC_LOG_LEVEL" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
	Verbose            bool     `yaml:"verbose" env:"NEAR_RPC_VERBOSE"`

	// Parsed values - marked with `yaml:"-"` to be ignored by the parser.
	CheckInterval   time.Duration `yaml:"-"`
	RequestTimeout  time.Duration `yaml:"-" validate:"gt=0"`
	ProbeTimeout    time.Duration `yaml:"-" validate:"gt=0"`
	RefreshCooldown time.Duration `yaml:"-" validate:"gt=0"`
	PollInterval    time.Duration `yaml:"-" validate:"gt=0"`
}

const dotEnvFilename = ".env"

// LoadConfig reads the configuration from the specified YAML file, applies
// .env and environment overrides, sets default values and validates the
// result.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", filename)
	}

	// A missing .env is not an error.
	_ = godotenv.Load(dotEnvFilename)

	return Parse(data)
}

// Parse builds a Config from YAML bytes plus the process environment.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config YAML")
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to read environment overrides")
	}

	if err := cfg.setDefaults(); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

func (c *Config) setDefaults() error {
	if c.GatewayPort == "" {
		c.GatewayPort = ":3030"
	}
	if c.MetricsPort == "" {
		c.MetricsPort = ":9090"
	}
	if c.CheckIntervalStr == "" {
		c.CheckIntervalStr = "0s"
	}
	if c.RequestTimeoutStr == "" {
		c.RequestTimeoutStr = "60s"
	}
	if c.ProbeTimeoutStr == "" {
		c.ProbeTimeoutStr = "5s"
	}
	if c.RefreshCooldownStr == "" {
		c.RefreshCooldownStr = "30s"
	}
	if c.PollIntervalStr == "" {
		c.PollIntervalStr = "3s"
	}
	if c.ProbeConcurrency == 0 {
		c.ProbeConcurrency = 16
	}

	var err error
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"checkInterval", c.CheckIntervalStr, &c.CheckInterval},
		{"requestTimeout", c.RequestTimeoutStr, &c.RequestTimeout},
		{"probeTimeout", c.ProbeTimeoutStr, &c.ProbeTimeout},
		{"refreshCooldown", c.RefreshCooldownStr, &c.RefreshCooldown},
		{"pollInterval", c.PollIntervalStr, &c.PollInterval},
	}
	for _, d := range durations {
		*d.dst, err = time.ParseDuration(d.raw)
		if err != nil {
			return errors.Wrapf(err, "invalid %s duration '%s'", d.name, d.raw)
		}
	}
	return nil
}
