package config

import (
	"errors"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// DefaultExemptPrefixes lists the paths that never pass through the tenant gate.
var DefaultExemptPrefixes = []string{
	"/health",
	"/metrics",
	"/api/health",
	"/api/setup",
	"/api/partners/register",
}

const DefaultCredentialHeader = "X-API-Key"

// TenancyConfig is read once at startup. It is never reloaded.
type TenancyConfig struct {
	CredentialHeader string   `mapstructure:"credentialHeader"`
	ExemptPrefixes   []string `mapstructure:"exemptPrefixes"`
}

func DefaultTenancyConfig() TenancyConfig {
	prefixes := make([]string, len(DefaultExemptPrefixes))
	copy(prefixes, DefaultExemptPrefixes)
	return TenancyConfig{
		CredentialHeader: DefaultCredentialHeader,
		ExemptPrefixes:   prefixes,
	}
}

// LoadTenancy reads tenancy.yml when present and applies env overrides.
func LoadTenancy() (TenancyConfig, error) {
	v := viper.New()

	v.SetConfigName("tenancy")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/compligenie")
	v.AddConfigPath(".")

	defaults := DefaultTenancyConfig()
	v.SetDefault("tenancy.credentialHeader", defaults.CredentialHeader)
	v.SetDefault("tenancy.exemptPrefixes", defaults.ExemptPrefixes)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return TenancyConfig{}, err
		}
	}

	var cfg TenancyConfig
	if err := v.UnmarshalKey("tenancy", &cfg); err != nil {
		return TenancyConfig{}, err
	}
	if strings.TrimSpace(cfg.CredentialHeader) == "" {
		cfg.CredentialHeader = defaults.CredentialHeader
	}
	if cfg.ExemptPrefixes == nil {
		cfg.ExemptPrefixes = defaults.ExemptPrefixes
	}

	if raw := strings.TrimSpace(os.Getenv("TENANT_GATE_EXEMPT_PREFIXES")); raw != "" {
		cfg.ExemptPrefixes = splitList(raw)
	}
	if header := strings.TrimSpace(os.Getenv("TENANT_GATE_HEADER")); header != "" {
		cfg.CredentialHeader = header
	}

	if err := validateTenancyConfig(cfg); err != nil {
		return TenancyConfig{}, err
	}
	return cfg, nil
}

func validateTenancyConfig(cfg TenancyConfig) error {
	if strings.TrimSpace(cfg.CredentialHeader) == "" {
		return errors.New("tenancy.credentialHeader cannot be empty")
	}
	for _, prefix := range cfg.ExemptPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			return errors.New("tenancy.exemptPrefixes entries must start with /")
		}
	}
	return nil
}
