// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/vaultembed/internal/vault"
)

// Loader assembles an AppConfig from defaults, an optional file and the environment.
type Loader struct {
	path string
}

// NewLoader returns a loader for the YAML file at path; empty path skips the file.
func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load is shorthand for NewLoader(path).Load().
func Load(path string) (AppConfig, error) {
	return NewLoader(path).Load()
}

// Load applies defaults, then the file, then ENV, and validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.path != "" {
		if err := l.loadFile(l.path, &cfg); err != nil {
			return AppConfig{}, err
		}
	}
	mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// loadFile decodes the YAML file at path over cfg with STRICT parsing.
// Unknown fields are fatal to prevent misconfiguration.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("strict config parse error: %w", errors.Join(ErrUnknownConfigField, err))
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnv overrides cfg with environment variables.
func mergeEnv(cfg *AppConfig) {
	v := &cfg.Vault
	v.URL = ParseString("VAULT_URL", v.URL)
	v.Secret = vault.Secret(ParseString("VAULT_SECRET", string(v.Secret)))
	v.ConfigurationID = ParseString("VAULT_CONFIGURATION_ID", v.ConfigurationID)
	v.Segment = ParseString("VAULT_SEGMENT", v.Segment)
	v.Retention = vault.Retention(ParseString("VAULT_RETENTION", string(v.Retention)))
	v.Timeout = ParseDuration("VAULT_TIMEOUT", v.Timeout)
	v.BreakerThreshold = ParseInt("VAULT_BREAKER_THRESHOLD", v.BreakerThreshold)
	v.BreakerReset = ParseDuration("VAULT_BREAKER_RESET", v.BreakerReset)

	f := &cfg.Frame
	f.TokenizeURL = ParseString("FRAME_TOKENIZE_URL", f.TokenizeURL)
	f.DetokenizeURL = ParseString("FRAME_DETOKENIZE_URL", f.DetokenizeURL)
	f.Origin = ParseString("FRAME_ORIGIN", f.Origin)
	f.CardTypes = ParseList("FRAME_CARD_TYPES", f.CardTypes)

	cfg.Log.Level = ParseString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = ParseString("LOG_SERVICE", cfg.Log.Service)

	t := &cfg.Telemetry
	t.Enabled = ParseBool("OTEL_ENABLED", t.Enabled)
	t.Exporter = ParseString("OTEL_EXPORTER", t.Exporter)
	t.Endpoint = ParseString("OTEL_ENDPOINT", t.Endpoint)
	t.SamplingRate = ParseFloat("OTEL_SAMPLING_RATE", t.SamplingRate)
}

// Dump renders cfg as YAML. The vault secret is masked.
func Dump(cfg AppConfig) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
