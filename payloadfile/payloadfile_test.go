// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package payloadfile

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/sha256-simd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var module = []byte("\x7fELF not really a shared object, but bytes all the same")

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func compress(t *testing.T, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func TestStage(t *testing.T) {
	tests := map[string]string{
		"plain":      writeFile(t, BaseName+LibrarySuffix, module),
		"compressed": writeFile(t, BaseName+LibrarySuffix+CompressedSuffix, compress(t, module)),
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			f, err := Stage(src, strings.ToUpper(digest(module)))
			require.NoError(t, err)
			assert.True(t, filepath.IsAbs(f.Path))
			assert.True(t, strings.HasSuffix(f.Path, LibrarySuffix))
			assert.Equal(t, digest(module), f.SHA256)

			got, err := os.ReadFile(f.Path)
			require.NoError(t, err)
			assert.Equal(t, module, got)

			require.NoError(t, f.Remove())
			_, err = os.Stat(f.Path)
			require.ErrorIs(t, err, os.ErrNotExist)
			require.NoError(t, f.Remove())
		})
	}
}

func TestStageDigestMismatch(t *testing.T) {
	src := writeFile(t, BaseName+LibrarySuffix, module)
	before, err := filepath.Glob(filepath.Join(os.TempDir(), tempPrefix+"*"))
	require.NoError(t, err)

	_, err = Stage(src, digest([]byte("something else")))
	require.ErrorIs(t, err, ErrDigestMismatch)

	after, err := filepath.Glob(filepath.Join(os.TempDir(), tempPrefix+"*"))
	require.NoError(t, err)
	assert.ElementsMatch(t, before, after)
}

func TestStageErrors(t *testing.T) {
	_, err := Stage(filepath.Join(t.TempDir(), "missing"+LibrarySuffix), "")
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := writeFile(t, "bad"+CompressedSuffix, []byte("not zstd"))
	_, err = Stage(bad, "")
	require.Error(t, err)
}
