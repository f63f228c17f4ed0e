// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for devicehub.
//
// Configuration comes from a single file named either by the
// DEVICEHUB_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no discovery and no automatic file
// search. Unknown keys are rejected so a misspelled option fails
// loudly instead of silently keeping its default.
//
// The file may carry development and production blocks that override
// base values when [Config].Environment matches. Production forbids
// integrity.allow_all.
//
// Path fields support ${HOME} and ${VAR:-default} expansion.
//
// Key exports:
//
//   - [Config] -- master struct with Listen, Paths, Store, Registry,
//     Session, Integrity, Metrics and Log sections
//   - [Default] -- the values used for anything the file omits
//   - [Load], [LoadFile] and [Parse] -- the entry points for loading
//   - [Config.Validate] -- reports every problem at once
package config
