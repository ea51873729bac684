// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package libpf holds the small value types shared by the remote inspection
// packages: process identifiers, target addresses and symbol tables.
package libpf // import "github.com/cls-tools/consolelogsaver/libpf"

// Void allows to use maps as sets without memory allocation for the values.
type Void struct{}

// Set is a convenience alias for a map with a `Void` key.
type Set[T comparable] map[T]Void
