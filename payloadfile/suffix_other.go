//go:build !darwin && !windows

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package payloadfile // import "github.com/cls-tools/consolelogsaver/payloadfile"

// LibrarySuffix is the file name suffix of shared libraries.
const LibrarySuffix = ".so"
