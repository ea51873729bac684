// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package mono // import "github.com/cls-tools/consolelogsaver/payload/mono"

// DefaultLibrary is the Mono runtime shipped with the editor.
const DefaultLibrary = "libmonobdwgc-2.0.dylib"
