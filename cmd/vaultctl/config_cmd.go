// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/ManuGH/vaultembed/internal/config"
)

// runConfig prints the effective configuration with the secret masked.
func runConfig(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vaultctl config", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to YAML configuration file")
	validateOnly := fs.Bool("validate", false, "only validate, print nothing on success")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}
	if *validateOnly {
		return 0
	}

	out, err := config.Dump(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	_, _ = stdout.Write(out)
	return 0
}
