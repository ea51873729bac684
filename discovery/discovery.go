// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package discovery finds running Unity editors.
package discovery // import "github.com/cls-tools/consolelogsaver/discovery"

import (
	"cmp"
	"context"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cls-tools/consolelogsaver/libpf"
)

// inspectWorkers bounds the number of processes inspected concurrently.
const inspectWorkers = 8

// Editor is a running Unity editor with an open project.
type Editor struct {
	PID         libpf.PID
	ProjectPath string
}

// editorExecutable is the trailing part of the editor executable path.
var editorExecutable = func() string {
	switch runtime.GOOS {
	case "darwin":
		return "Contents/MacOS/Unity"
	case "windows":
		return "Unity.exe"
	default:
		return "Unity"
	}
}()

// hasPathSuffix compares whole path components of path and suffix.
func hasPathSuffix(path, suffix string) bool {
	path = filepath.ToSlash(path)
	return path == suffix || strings.HasSuffix(path, "/"+suffix)
}

// projectPath returns the project opened by an editor command line.
// Asset import workers also receive -projectPath but are started with
// -srvPort.
func projectPath(args []string) (string, bool) {
	if slices.Contains(args, "-srvPort") {
		return "", false
	}
	i := slices.Index(args, "-projectPath")
	if i < 0 || i+1 >= len(args) {
		return "", false
	}
	return args[i+1], true
}

// Match reports whether a process is an editor and returns its project.
func Match(exe string, args []string) (Editor, bool) {
	if !hasPathSuffix(exe, editorExecutable) {
		return Editor{}, false
	}
	project, ok := projectPath(args)
	if !ok {
		return Editor{}, false
	}
	return Editor{ProjectPath: project}, true
}

// Find lists the running editors ordered by PID. Processes that cannot be
// inspected are skipped.
func Find(ctx context.Context) ([]Editor, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		editors []Editor
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(inspectWorkers)
	for _, p := range procs {
		p := p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			exe, err := p.ExeWithContext(ctx)
			if err != nil || !hasPathSuffix(exe, editorExecutable) {
				return nil
			}
			args, err := p.CmdlineSliceWithContext(ctx)
			if err != nil {
				log.Debugf("Skipping PID %d: %v", p.Pid, err)
				return nil
			}
			ed, ok := Match(exe, args)
			if !ok {
				return nil
			}
			ed.PID = libpf.PID(p.Pid)
			mu.Lock()
			editors = append(editors, ed)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.SortFunc(editors, func(a, b Editor) int { return cmp.Compare(a.PID, b.PID) })
	return editors, nil
}
