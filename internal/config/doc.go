// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config assembles the vaultctl configuration.
//
// Precedence is ENV > file > defaults. The optional YAML file is decoded
// strictly: unknown keys fail with ErrUnknownConfigField. The assembled
// config is validated once; callers never see a partially valid AppConfig.
package config
