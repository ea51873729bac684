// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "github.com/cls-tools/consolelogsaver/internal/controller"

import (
	"context"
	"io"

	"github.com/cls-tools/consolelogsaver/discovery"
	"github.com/cls-tools/consolelogsaver/remote"
	"github.com/cls-tools/consolelogsaver/updatecheck"
)

type Option interface {
	applyOption(*Controller) *Controller
}
type controllerOptionFunc func(*Controller) *Controller

func (f controllerOptionFunc) applyOption(c *Controller) *Controller {
	return f(c)
}

// WithDebugger sets the backend used to attach to the editor.
// This defaults to [debugger.Ptrace]
func WithDebugger(dbg remote.Debugger) Option {
	return controllerOptionFunc(func(c *Controller) *Controller {
		c.debugger = dbg
		return c
	})
}

// WithEditorFinder replaces the discovery of running editors.
func WithEditorFinder(find func(context.Context) ([]discovery.Editor, error)) Option {
	return controllerOptionFunc(func(c *Controller) *Controller {
		c.findEditors = find
		return c
	})
}

// WithUpdateChecker sets the checker used by -check-update.
func WithUpdateChecker(checker *updatecheck.Checker) Option {
	return controllerOptionFunc(func(c *Controller) *Controller {
		c.updates = checker
		return c
	})
}

// WithStdout redirects the document and listings written to standard output.
func WithStdout(w io.Writer) Option {
	return controllerOptionFunc(func(c *Controller) *Controller {
		c.stdout = w
		return c
	})
}
