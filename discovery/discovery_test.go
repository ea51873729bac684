// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cls-tools/consolelogsaver/libpf"
)

func TestMatch(t *testing.T) {
	exe := "/opt/Unity/Hub/Editor/2022.3.22f1/Editor/" + editorExecutable

	tests := map[string]struct {
		exe     string
		args    []string
		project string
		ok      bool
	}{
		"editor": {
			exe:     exe,
			args:    []string{exe, "-projectPath", "/home/alice/Game", "-useHub"},
			project: "/home/alice/Game",
			ok:      true,
		},
		"import worker": {
			exe:  exe,
			args: []string{exe, "-projectPath", "/home/alice/Game", "-srvPort", "1234"},
		},
		"no project": {
			exe:  exe,
			args: []string{exe, "-batchmode"},
		},
		"dangling projectPath": {
			exe:  exe,
			args: []string{exe, "-projectPath"},
		},
		"other executable": {
			exe:  "/usr/bin/NotUnity",
			args: []string{"NotUnity", "-projectPath", "/tmp/x"},
		},
		"executable name only": {
			exe:     editorExecutable,
			args:    []string{"-projectPath", "/tmp/p"},
			project: "/tmp/p",
			ok:      true,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ed, ok := Match(tc.exe, tc.args)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.project, ed.ProjectPath)
		})
	}
}

func TestFind(t *testing.T) {
	editors, err := Find(context.Background())
	require.NoError(t, err)
	for i := 1; i < len(editors); i++ {
		assert.Less(t, editors[i-1].PID, editors[i].PID)
	}
	// The test binary is never an editor.
	for _, ed := range editors {
		assert.NotEqual(t, libpf.PID(os.Getpid()), ed.PID)
	}
}

func TestFindCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Find(ctx)
	require.Error(t, err)
}
