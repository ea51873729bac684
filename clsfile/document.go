// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package clsfile // import "github.com/cls-tools/consolelogsaver/clsfile"

import (
	"fmt"
	"strings"

	"github.com/cls-tools/consolelogsaver/manifest"
	"github.com/cls-tools/consolelogsaver/redact"
	"github.com/cls-tools/consolelogsaver/transfer"
)

// LogElement is the content type of a console record section.
const LogElement = "log-element"

// lineBreaks folds values reported by the target onto one line.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// Options controls how a decoded transfer document is rendered.
type Options struct {
	// Vendor names the producing tool.
	Vendor string
	// HideOSInfo omits the Editor-Platform header.
	HideOSInfo bool
	// Redactor filters messages and local package versions.
	Redactor *redact.Redactor
	// Packages overrides the manifests read from the reported current
	// directory when not nil.
	Packages *Packages
}

// Packages are the locked dependencies of the inspected project.
type Packages struct {
	UPM []manifest.Package
	VPM []manifest.Package
}

// CollectPackages reads the package manifests of projectDir.
func CollectPackages(projectDir string, r *redact.Redactor) *Packages {
	var filter func(string) string
	if r != nil {
		filter = r.Replace
	}
	return &Packages{
		UPM: manifest.UPM(projectDir, filter),
		VPM: manifest.VPM(projectDir),
	}
}

// Render writes doc as a ConsoleLogSaverData document.
func Render(doc *transfer.Document, opts Options) (string, error) {
	w := NewWriter()
	replace := func(s string) string { return s }
	var hidden []string
	if opts.Redactor != nil {
		replace = opts.Redactor.Replace
		hidden = opts.Redactor.Hidden()
	}

	headers := [][2]string{
		{"Vendor", opts.Vendor},
		{"Unity-Version", doc.UnityVersion},
	}
	if !opts.HideOSInfo {
		headers = append(headers, [2]string{"Editor-Platform", doc.OSDescription})
	}
	for _, h := range hidden {
		headers = append(headers, [2]string{"Hidden-Data", h})
	}
	headers = append(headers, [2]string{"Build-Target", doc.BuildTarget})

	pkgs := opts.Packages
	if pkgs == nil {
		pkgs = CollectPackages(doc.CurrentDirectory, opts.Redactor)
	}
	for _, p := range pkgs.UPM {
		headers = append(headers, [2]string{"Upm-Dependency", p.String()})
	}
	for _, p := range pkgs.VPM {
		headers = append(headers, [2]string{"Vpm-Dependency", p.String()})
	}

	for _, h := range headers {
		if err := w.AddHeader(h[0], lineBreaks.Replace(h[1])); err != nil {
			return "", err
		}
	}
	w.BeginBody()

	for i, rec := range doc.Records {
		if err := w.AddHeader("Mode", fmt.Sprintf("%d", int32(rec.Mode))); err != nil {
			return "", err
		}
		if err := w.AddHeader("Mode-Raw", fmt.Sprintf("%08x", uint32(rec.Mode))); err != nil {
			return "", err
		}
		if err := w.AddContent(LogElement, replace(rec.Message)); err != nil {
			return "", fmt.Errorf("record %d: %w", i, err)
		}
	}
	return w.String(), nil
}
