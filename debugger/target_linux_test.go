// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package debugger

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cls-tools/consolelogsaver/libpf"
	"github.com/cls-tools/consolelogsaver/process"
	"github.com/cls-tools/consolelogsaver/remote"
	"github.com/cls-tools/consolelogsaver/remote/expr"
)

// attachSleeper starts a dynamically linked child and attaches to it.
func attachSleeper(t *testing.T) (*exec.Cmd, remote.Target) {
	t.Helper()
	path, err := exec.LookPath("sleep")
	if err != nil {
		t.Skipf("sleep not available: %v", err)
	}
	cmd := exec.Command(path, "30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	tgt, err := Ptrace{}.Attach(context.Background(), libpf.PID(cmd.Process.Pid))
	if errors.Is(err, process.ErrPermissionDenied) {
		t.Skipf("ptrace not permitted: %v", err)
	}
	require.NoError(t, err)
	return cmd, tgt
}

func TestTargetCalls(t *testing.T) {
	cmd, tgt := attachSleeper(t)
	defer func() {
		require.NoError(t, tgt.Resume())
		require.NoError(t, tgt.Detach())
	}()

	mods, err := tgt.Modules()
	require.NoError(t, err)
	libc := -1
	for i, m := range mods {
		if loaderRank(m.Path) >= 0 {
			libc = i
		}
	}
	if libc < 0 {
		t.Skip("sleep is not linked against a known C library")
	}

	// getpid in the child returns the child's PID.
	b := expr.NewBuilder("getpid", expr.I32)
	getpid := b.Func("getpid", expr.I32)
	entry := b.Block("entry")
	entry.Ret(entry.Call(getpid))
	prog, err := b.Build()
	require.NoError(t, err)
	pid, err := tgt.Evaluate(prog)
	require.NoError(t, err)
	assert.Equal(t, uint64(cmd.Process.Pid), pid)

	addr, err := tgt.Allocate(100, remote.ProtRead|remote.ProtWrite)
	require.NoError(t, err)
	require.NoError(t, tgt.WriteMemory(addr, []byte("console log\x00")))
	got := make([]byte, 11)
	require.NoError(t, tgt.ReadMemory(addr, got))
	assert.Equal(t, "console log", string(got))

	strlen, err := tgt.(expr.Machine).ResolveFunction("strlen")
	require.NoError(t, err)
	n, err := tgt.(expr.Machine).Call(strlen, uint64(addr))
	require.NoError(t, err)
	assert.Equal(t, uint64(11), n)

	require.NoError(t, tgt.Deallocate(addr))
	require.Error(t, tgt.Deallocate(addr))

	_, err = tgt.LoadImage("/nonexistent/libpayload.so")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/nonexistent/libpayload.so")
}

func TestAttachMissing(t *testing.T) {
	_, err := Ptrace{}.Attach(context.Background(), 0x7ffffff0)
	require.ErrorIs(t, err, process.ErrNoSuchProcess)
}
