// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

// Package config loads runtime configuration for the biu CLI, the way
// the teacher's gateway/internal/config package loads environment
// configuration: environment variables (optionally sourced from a .env
// file via godotenv), with documented defaults, composed on top of flags
// parsed by cmd/biu.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Defaults mirrors original_source's constant defaults for the fields
// that aren't mandatory CLI arguments.
type Defaults struct {
	MinBytesForDedup uint64
	ForceDeleteFloor int
	RetentionPlan    string
}

const (
	defaultMinBytesForDedup = 0
	defaultForceDeleteFloor = 0
	defaultRetentionPlan    = "7*1d,4*1w"
)

// Load reads environment-sourced defaults, best-effort loading a .env
// file first so local development doesn't need the shell to export
// anything. CLI flags parsed by cmd/biu always take precedence over
// these; Load only supplies fallbacks for flags the user didn't set.
func Load() Defaults {
	_ = godotenv.Load(".env")

	d := Defaults{
		MinBytesForDedup: defaultMinBytesForDedup,
		ForceDeleteFloor: defaultForceDeleteFloor,
		RetentionPlan:    defaultRetentionPlan,
	}

	if v := strings.TrimSpace(os.Getenv("BIU_MIN_BYTES_FOR_DEDUP")); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			d.MinBytesForDedup = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("BIU_FORCE_DELETE_FLOOR")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			d.ForceDeleteFloor = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("BIU_RETENTION_PLAN")); v != "" {
		d.RetentionPlan = v
	}

	return d
}
