// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest lists the packages a Unity project has locked, as recorded
// by the Unity Package Manager (UPM) and the VRChat Package Manager (VPM).
package manifest // import "github.com/cls-tools/consolelogsaver/manifest"

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"
)

const (
	upmLockFile     = "packages-lock.json"
	vpmManifestFile = "vpm-manifest.json"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Package is a locked dependency.
type Package struct {
	Name    string
	Version string
}

func (p Package) String() string {
	return p.Name + "@" + p.Version
}

// Source tells where a UPM package version comes from.
type Source int

const (
	Registry Source = iota
	HTTPSGit
	SSHGit
	GitGit
	FileGit
	FileRelative
	FileAbsolute
)

// Local reports whether the version may contain a path of this machine.
func (s Source) Local() bool {
	return s == FileGit || s == FileAbsolute
}

// DetectSource classifies a UPM version string.
func DetectSource(version string) Source {
	if strings.HasPrefix(version, "file://") ||
		strings.Contains(version, ".git") ||
		strings.HasPrefix(version, "git+") {
		url := strings.TrimPrefix(version, "git+")
		switch {
		case strings.HasPrefix(url, "https:"):
			return HTTPSGit
		case strings.HasPrefix(url, "ssh:"):
			return SSHGit
		case strings.HasPrefix(url, "file:"):
			return FileGit
		case strings.HasPrefix(url, "git:"):
			return GitGit
		}
	}
	if path, ok := strings.CutPrefix(version, "file:"); ok {
		if isRooted(path) {
			return FileAbsolute
		}
		return FileRelative
	}
	return Registry
}

// isRooted accepts both Unix and Windows absolute paths.
func isRooted(path string) bool {
	return strings.HasPrefix(path, "/") || strings.HasPrefix(path, `\`) ||
		filepath.IsAbs(path) || hasDriveLetter(path)
}

func hasDriveLetter(path string) bool {
	if len(path) < 2 || path[1] != ':' {
		return false
	}
	c := path[0] | 0x20
	return 'a' <= c && c <= 'z'
}

type lockedVersion struct {
	Version *string `json:"version"`
}

// readLocked decodes the map under key of a JSON file. Unreadable files give
// no packages.
func readLocked(path, key string) []Package {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Debugf("Skipping %s: %v", path, err)
		return nil
	}
	var doc map[string]jsoniter.RawMessage
	var locked map[string]lockedVersion
	if err = json.Unmarshal(data, &doc); err == nil && doc[key] != nil {
		err = json.Unmarshal(doc[key], &locked)
	}
	if err != nil {
		log.Debugf("Skipping %s: %v", path, err)
		return nil
	}
	pkgs := make([]Package, 0, len(locked))
	for name, dep := range locked {
		if dep.Version == nil {
			continue
		}
		pkgs = append(pkgs, Package{Name: name, Version: *dep.Version})
	}
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Name < pkgs[j].Name })
	return pkgs
}

// UPM returns the dependencies in Packages/packages-lock.json under
// projectDir. Versions that may hold local paths are passed through redact.
func UPM(projectDir string, redact func(string) string) []Package {
	pkgs := readLocked(filepath.Join(projectDir, "Packages", upmLockFile), "dependencies")
	for i := range pkgs {
		if redact != nil && DetectSource(pkgs[i].Version).Local() {
			pkgs[i].Version = redact(pkgs[i].Version)
		}
	}
	return pkgs
}

// VPM returns the locked packages in Packages/vpm-manifest.json under
// projectDir.
func VPM(projectDir string) []Package {
	return readLocked(filepath.Join(projectDir, "Packages", vpmManifestFile), "locked")
}
