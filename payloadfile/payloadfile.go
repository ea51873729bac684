// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package payloadfile stages the payload module for loading into the target:
// a private copy in the temporary directory, unpacked if it is zstd
// compressed and optionally checked against a known SHA-256 digest.
package payloadfile // import "github.com/cls-tools/consolelogsaver/payloadfile"

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/sha256-simd"
	log "github.com/sirupsen/logrus"
)

const (
	// BaseName is the file name of the payload module without suffix.
	BaseName = "libclspayload"

	// CompressedSuffix marks a zstd compressed payload module.
	CompressedSuffix = ".zst"

	tempPrefix = "cls_attach_lib"
)

// ErrDigestMismatch is returned when the staged module has an unexpected
// SHA-256 digest.
var ErrDigestMismatch = errors.New("payload digest mismatch")

// File is a staged payload module.
type File struct {
	// Path is the absolute path of the staged module.
	Path string
	// SHA256 is the digest of the staged module, hex encoded.
	SHA256 string
}

// Locate returns the payload module shipped next to the executable,
// preferring the compressed form.
func Locate() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(exe)
	for _, name := range []string{
		BaseName + LibrarySuffix + CompressedSuffix,
		BaseName + LibrarySuffix,
	} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no %s%s next to %s", BaseName, LibrarySuffix, exe)
}

// Stage copies the module at src into a new private temporary file.
// A src ending in CompressedSuffix is decompressed. If wantSHA256 is not
// empty, it must match the digest of the staged module.
func Stage(src, wantSHA256 string) (_ *File, err error) {
	in, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	var r io.Reader = in
	if strings.HasSuffix(src, CompressedSuffix) {
		dec, err := zstd.NewReader(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", src, err)
		}
		defer dec.Close()
		r = dec
	}

	out, err := os.CreateTemp("", tempPrefix+"*"+LibrarySuffix)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(out.Name())
		}
	}()

	hasher := sha256.New()
	if _, err = io.Copy(io.MultiWriter(out, hasher), r); err != nil {
		return nil, fmt.Errorf("failed to stage %s: %w", src, err)
	}
	if err = out.Close(); err != nil {
		return nil, err
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	if wantSHA256 != "" && !strings.EqualFold(wantSHA256, digest) {
		return nil, fmt.Errorf("%w: %s has %s, expected %s",
			ErrDigestMismatch, src, digest, wantSHA256)
	}

	path, err := filepath.Abs(out.Name())
	if err != nil {
		return nil, err
	}
	log.Debugf("Staged payload %s at %s (sha256 %s)", src, path, digest)
	return &File{Path: path, SHA256: digest}, nil
}

// Remove deletes the staged module.
func (f *File) Remove() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
