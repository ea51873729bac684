// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package redact hides personal and secret data in console messages before
// they leave the machine. Every match is replaced by ${name} where name
// identifies the kind of data removed.
package redact // import "github.com/cls-tools/consolelogsaver/redact"

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"
)

// Names of the hidden data kinds, as reported in Hidden-Data headers.
const (
	UserName           = "user-name"
	UserHome           = "user-home"
	AWSAccessKeyID     = "aws-access-key-id-param"
	AssetURL           = "asset-url"
	AWSUploadSignature = "signature-param"
)

var (
	signatureRegex   = regexp.MustCompile(`(?P<prefix>Signature=)[^&\s]+`)
	accessKeyIDRegex = regexp.MustCompile(`(?P<prefix>AWSAccessKeyId=)[^&\s]+`)
	assetURLRegex    = regexp.MustCompile(
		`(?P<prefix>"assetUrl"\s*:\s*")(?:[^\x00-\x1F"\\]|\\(?:u[a-fA-F0-9]{4}|["\\/bfnrt]))*(?P<suffix>")`)
)

// Config selects the optional filters. Access key IDs and asset URLs are
// always hidden.
type Config struct {
	HideUserName           bool
	HideUserHome           bool
	HideAWSUploadSignature bool

	// UserName and HomeDir override the values of the current user.
	UserName string
	HomeDir  string
}

// DefaultConfig returns the filters enabled when nothing else is asked for.
func DefaultConfig() Config {
	return Config{
		HideUserName:           true,
		HideUserHome:           true,
		HideAWSUploadSignature: true,
	}
}

type rule struct {
	re       *regexp.Regexp
	template string
}

// Redactor applies a fixed set of replacements.
type Redactor struct {
	rules  []rule
	hidden []string
}

func newRule(re *regexp.Regexp, name string) rule {
	// Groups that do not exist in re expand to nothing.
	return rule{re: re, template: "${prefix}$${" + name + "}${suffix}"}
}

// New compiles the filters selected by cfg.
func New(cfg Config) (*Redactor, error) {
	r := &Redactor{}
	if cfg.HideUserName {
		r.hidden = append(r.hidden, UserName)
	}
	if cfg.HideUserHome {
		r.hidden = append(r.hidden, UserHome)
	}
	r.hidden = append(r.hidden, AWSAccessKeyID, AssetURL)
	if cfg.HideAWSUploadSignature {
		r.hidden = append(r.hidden, AWSUploadSignature)
	}

	if cfg.HideUserHome {
		home := cfg.HomeDir
		if home == "" {
			var err error
			if home, err = os.UserHomeDir(); err != nil {
				return nil, fmt.Errorf("hide user home: %w", err)
			}
		}
		pattern := homePattern(home)
		if pattern == "" {
			return nil, fmt.Errorf("hide user home: unusable home directory %q", home)
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, err
		}
		r.rules = append(r.rules, newRule(re, UserHome))
	}
	if cfg.HideUserName {
		name := cfg.UserName
		if name == "" {
			var err error
			if name, err = currentUserName(); err != nil {
				return nil, fmt.Errorf("hide user name: %w", err)
			}
		}
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(name))
		if err != nil {
			return nil, err
		}
		r.rules = append(r.rules, newRule(re, UserName))
	}
	if cfg.HideAWSUploadSignature {
		r.rules = append(r.rules, newRule(signatureRegex, AWSUploadSignature))
	}
	r.rules = append(r.rules,
		newRule(accessKeyIDRegex, AWSAccessKeyID),
		newRule(assetURLRegex, AssetURL))
	return r, nil
}

// Hidden lists the kinds of data this Redactor removes.
func (r *Redactor) Hidden() []string {
	return r.hidden
}

// Replace returns s with all filtered data replaced. The home directory is
// replaced before the user name it usually contains.
func (r *Redactor) Replace(s string) string {
	for _, rl := range r.rules {
		s = rl.re.ReplaceAllString(s, rl.template)
	}
	return s
}

// homePattern matches dir with either kind of path separator. It returns ""
// for a directory without any named component.
func homePattern(dir string) string {
	vol := filepath.VolumeName(dir)
	rest := dir[len(vol):]

	var parts []string
	for _, p := range strings.FieldsFunc(rest, isSeparator) {
		if p != "." {
			parts = append(parts, regexp.QuoteMeta(p))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(regexp.QuoteMeta(vol))
	if rest != "" && isSeparator(rune(rest[0])) {
		b.WriteString(`[/\\]`)
	}
	b.WriteString(strings.Join(parts, `[/\\]`))
	return b.String()
}

func isSeparator(r rune) bool {
	return r == '/' || r == '\\'
}

// currentUserName returns the login name without a Windows domain.
func currentUserName() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	name := u.Username
	if i := strings.LastIndexByte(name, '\\'); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "", fmt.Errorf("empty user name")
	}
	return name, nil
}
