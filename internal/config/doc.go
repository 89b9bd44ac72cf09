// SPDX-License-Identifier: MIT

// Package config loads and validates the sonicat configuration tree.
//
// The configuration lives in a single YAML file at
// <sonicat_path>/config/config.yaml and is decoded strictly: unknown keys are
// rejected so typos fail at startup instead of silently disabling work.
// Precedence is environment > file > defaults; the loader records every
// environment key it consults. API credentials live in a separate secrets
// file so the main config can be committed.
package config
