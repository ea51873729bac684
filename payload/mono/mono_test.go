//go:build linux || darwin

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package mono

import (
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingLibrary(t *testing.T) {
	_, err := Open("libconsolelogsaver-no-such-mono.so")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "libconsolelogsaver-no-such-mono.so")
}

func TestManagedException(t *testing.T) {
	assert.Equal(t, "managed exception", (&ManagedException{}).Error())
	msg := decode(utf16.Encode([]rune("System.NullReferenceException: Object reference not set")))
	assert.Equal(t, "managed exception: System.NullReferenceException: Object reference not set",
		(&ManagedException{Message: msg}).Error())
}
