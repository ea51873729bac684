// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package vc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinkTimeValues(t *testing.T) {
	defer func(v, r string) { version, revision = v, r }(version, revision)

	version, revision = "v1.2.3", "abcdef"
	assert.Equal(t, "v1.2.3", Version())
	assert.Equal(t, "abcdef", Revision())

	version, revision = "", ""
	assert.NotEmpty(t, Version())
	assert.NotEmpty(t, Revision())
}
