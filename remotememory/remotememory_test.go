// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package remotememory

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"runtime"
	"syscall"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cls-tools/consolelogsaver/libpf"
)

func RemoteMemTests(t *testing.T, rm RemoteMemory) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	dataPtr := libpf.Address(unsafe.Pointer(&data[0]))
	str := []byte("this is a string\x00")
	strPtr := libpf.Address(unsafe.Pointer(&str[0]))
	longStr := append(bytes.Repeat([]byte("long test string"), 4095/16), 0x00)
	longStrPtr := libpf.Address(unsafe.Pointer(&longStr[0]))

	foo := make([]byte, len(data))
	err := rm.Read(dataPtr, foo)
	if errors.Is(err, syscall.ENOSYS) || errors.Is(err, syscall.EPERM) {
		t.Skipf("skipping due to error: %v", err)
	}
	require.NoError(t, err)
	assert.Equal(t, data, foo)
	assert.Equal(t, string(str[:len(str)-1]), rm.String(strPtr))
	assert.Equal(t, string(longStr[:len(longStr)-1]), rm.String(longStrPtr))

	s, err := rm.StringN(strPtr, 4)
	require.NoError(t, err)
	assert.Equal(t, "this", s)

	target := make([]byte, 8)
	targetPtr := libpf.Address(unsafe.Pointer(&target[0]))
	ptr := make([]byte, 8)
	rm.EncodePtr(ptr, 0x1122334455667788)
	require.NoError(t, rm.Write(targetPtr, ptr))
	assert.Equal(t, libpf.Address(0x1122334455667788), rm.Ptr(targetPtr))
	runtime.KeepAlive(target)
	runtime.KeepAlive(data)
	runtime.KeepAlive(str)
	runtime.KeepAlive(longStr)
}

func TestProcessVirtualMemory(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skipf("unsupported os %s", runtime.GOOS)
	}
	if hostPtrSize != 8 {
		t.Skipf("unsupported pointer size %d", hostPtrSize)
	}
	RemoteMemTests(t, NewProcessVirtualMemory(libpf.PID(os.Getpid())))
}

type sliceMemory []byte

func (s sliceMemory) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(s)) {
		return 0, errors.New("out of range")
	}
	return copy(p, s[off:]), nil
}

func (s sliceMemory) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(s)) {
		return 0, errors.New("out of range")
	}
	return copy(s[off:], p), nil
}

func TestPointerWidthAndOrder(t *testing.T) {
	mem := make(sliceMemory, 16)
	rm := RemoteMemory{ReaderAt: mem, WriterAt: mem, Order: binary.BigEndian, PtrSize: 4}

	rm.EncodePtr(mem[4:], 0xdeadbeef)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, []byte(mem[4:8]))
	assert.Equal(t, libpf.Address(0xdeadbeef), rm.Ptr(4))

	_, err := rm.PtrChecked(14)
	require.Error(t, err)
	assert.Equal(t, libpf.Address(0), rm.Ptr(14))
}

func TestReadOnly(t *testing.T) {
	rm := RemoteMemory{ReaderAt: make(sliceMemory, 8)}
	require.ErrorIs(t, rm.Write(0, []byte{1}), ErrReadOnly)
}
