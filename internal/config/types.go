// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"strings"
	"time"

	"github.com/ManuGH/vaultembed/internal/embed"
	"github.com/ManuGH/vaultembed/internal/log"
	"github.com/ManuGH/vaultembed/internal/telemetry"
	"github.com/ManuGH/vaultembed/internal/vault"
)

// AppConfig is the effective configuration of one vaultctl invocation.
type AppConfig struct {
	Vault     VaultConfig     `yaml:"vault"`
	Frame     FrameConfig     `yaml:"frame"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// VaultConfig holds the merchant's vault coordinates.
type VaultConfig struct {
	URL              string          `yaml:"url" validate:"required,url"`
	Secret           vault.Secret    `yaml:"secret"`
	ConfigurationID  string          `yaml:"configurationId"`
	Segment          string          `yaml:"segment"`
	Retention        vault.Retention `yaml:"retention" validate:"omitempty,oneof=forever big-year year month day"`
	Timeout          time.Duration   `yaml:"timeout" validate:"gt=0,lte=5s"`
	BreakerThreshold int             `yaml:"breakerThreshold" validate:"gte=-1"`
	BreakerReset     time.Duration   `yaml:"breakerReset" validate:"gte=0"`
}

// FrameConfig locates the isolated frame.
type FrameConfig struct {
	TokenizeURL   string   `yaml:"tokenizeUrl" validate:"omitempty,url"`
	DetokenizeURL string   `yaml:"detokenizeUrl" validate:"omitempty,url"`
	Origin        string   `yaml:"origin" validate:"omitempty,url"`
	CardTypes     []string `yaml:"cardTypes" validate:"dive,oneof=visa mastercard amex discover"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level   string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Service string `yaml:"service"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter" validate:"oneof=grpc http"`
	Endpoint     string  `yaml:"endpoint" validate:"required_if=Enabled true"`
	SamplingRate float64 `yaml:"samplingRate" validate:"gte=0,lte=1"`
}

// Defaults returns the configuration used when neither file nor ENV set a value.
func Defaults() AppConfig {
	return AppConfig{
		Vault: VaultConfig{
			URL:              vault.DefaultURL,
			Retention:        vault.RetentionForever,
			Timeout:          vault.DefaultTimeout,
			BreakerThreshold: 3,
			BreakerReset:     30 * time.Second,
		},
		Frame: FrameConfig{
			TokenizeURL:   "http://127.0.0.1:8099/embedded-tokenize",
			DetokenizeURL: "http://127.0.0.1:8099/embedded-detokenize",
			CardTypes:     []string{"visa", "mastercard", "amex", "discover"},
		},
		Log: LogConfig{
			Level:   "info",
			Service: "vaultctl",
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// NegotiatorConfig maps the vault section onto vault.Config.
func (c AppConfig) NegotiatorConfig() vault.Config {
	return vault.Config{
		URL:              c.Vault.URL,
		Timeout:          c.Vault.Timeout,
		BreakerThreshold: c.Vault.BreakerThreshold,
		BreakerReset:     c.Vault.BreakerReset,
	}
}

// Credentials returns the negotiation inputs for one merchant transaction.
func (c AppConfig) Credentials(merchantTransactionID string) vault.Credentials {
	return vault.Credentials{
		ConfigurationID:       c.Vault.ConfigurationID,
		MerchantTransactionID: merchantTransactionID,
		Segment:               c.Vault.Segment,
		Retention:             c.Vault.Retention,
		Secret:                c.Vault.Secret,
	}
}

// EmbedConfig maps the frame section onto embed.Config.
func (c AppConfig) EmbedConfig() embed.Config {
	return embed.Config{
		TokenizeURL:   c.Frame.TokenizeURL,
		DetokenizeURL: c.Frame.DetokenizeURL,
		Origin:        c.Frame.Origin,
		CardTypes:     append([]string(nil), c.Frame.CardTypes...),
	}
}

// LogConfig maps the log section onto log.Config.
func (c AppConfig) LogConfig(version string) log.Config {
	return log.Config{Level: c.Log.Level, Service: c.Log.Service, Version: version}
}

// TelemetryConfig maps the telemetry section onto telemetry.Config.
func (c AppConfig) TelemetryConfig(version string) telemetry.Config {
	return telemetry.Config{
		Enabled:        c.Telemetry.Enabled,
		ServiceName:    c.Log.Service,
		ServiceVersion: version,
		Environment:    environmentOf(c.Vault.URL),
		ExporterType:   c.Telemetry.Exporter,
		Endpoint:       c.Telemetry.Endpoint,
		SamplingRate:   c.Telemetry.SamplingRate,
	}
}

// environmentOf labels spans by vault tier; sandbox hosts carry a "-sb." suffix.
func environmentOf(vaultURL string) string {
	if strings.Contains(vaultURL, "-sb.") {
		return "sandbox"
	}
	return "production"
}
