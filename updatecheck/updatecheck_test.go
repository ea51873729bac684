// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package updatecheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, status int, body string) *Checker {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "ConsoleLogSaver-update-checker/")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return &Checker{Client: srv.Client(), URL: srv.URL}
}

func TestCheck(t *testing.T) {
	tests := map[string]struct {
		current  string
		latest   string
		outdated bool
	}{
		"older patch":         {current: "v0.3.1", latest: "0.3.2\n", outdated: true},
		"same":                {current: "0.3.2", latest: "0.3.2\r\nnotes", outdated: false},
		"newer":               {current: "v1.0.0", latest: "0.9.9", outdated: false},
		"prerelease of same":  {current: "v0.3.2-beta.1", latest: "0.3.2", outdated: true},
		"build metadata":      {current: "v0.3.2+abcdef", latest: "0.3.2", outdated: false},
		"latest prerelease":   {current: "v0.3.1", latest: "0.3.2-rc.1", outdated: true},
		"release vs next pre": {current: "v0.3.2", latest: "0.3.2-rc.1", outdated: false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := serve(t, http.StatusOK, tc.latest)
			res, err := c.Check(context.Background(), tc.current)
			require.NoError(t, err)
			assert.Equal(t, tc.outdated, res.Outdated)
		})
	}
}

func TestCheckLatestLine(t *testing.T) {
	c := serve(t, http.StatusOK, " 1.2.3 \nchangelog follows\n")
	res, err := c.Check(context.Background(), "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", res.Latest)
	assert.True(t, res.Outdated)
}

func TestCheckFailures(t *testing.T) {
	_, err := serve(t, http.StatusNotFound, "").Check(context.Background(), "1.0.0")
	require.Error(t, err)

	_, err = serve(t, http.StatusOK, "<html>").Check(context.Background(), "1.0.0")
	require.Error(t, err)

	_, err = (&Checker{}).Check(context.Background(), "")
	require.Error(t, err)
}
