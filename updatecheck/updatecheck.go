// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package updatecheck compares the running version with the latest published
// release.
package updatecheck // import "github.com/cls-tools/consolelogsaver/updatecheck"

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// LatestURL serves the latest release version on its first line.
const LatestURL = "https://github.com/anatawa12/ConsoleLogSaver/raw/master/latest.txt"

// maxResponseSize bounds the body read from LatestURL.
const maxResponseSize = 4096

// Result is the outcome of a successful check.
type Result struct {
	Latest   string
	Outdated bool
}

// Checker fetches the latest version. The zero value uses LatestURL and a
// client with a short timeout.
type Checker struct {
	Client *http.Client
	URL    string
}

// canonical turns "1.2.3" and "v1.2.3-beta" into a comparable semantic
// version, or "" if v is not one.
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	// Build metadata such as a commit hash does not order versions.
	return semver.Canonical(v)
}

// Check reports whether current is older than the published release.
func (c *Checker) Check(ctx context.Context, current string) (*Result, error) {
	cur := canonical(current)
	if cur == "" {
		return nil, fmt.Errorf("current version %q is not a release version", current)
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	url := c.URL
	if url == "" {
		url = LatestURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", fmt.Sprintf(
		"ConsoleLogSaver-update-checker/%s (https://github.com/anatawa12/ConsoleLogSaver)", current))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest version: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch latest version: %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read latest version: %w", err)
	}

	latest, _, _ := strings.Cut(string(body), "\n")
	latest = strings.TrimSpace(latest)
	parsed := canonical(latest)
	if parsed == "" {
		return nil, fmt.Errorf("invalid latest version %q", latest)
	}
	return &Result{
		Latest:   latest,
		Outdated: semver.Compare(cur, parsed) < 0,
	}, nil
}
