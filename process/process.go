// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package process // import "github.com/cls-tools/consolelogsaver/process"

import (
	"bufio"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/cls-tools/consolelogsaver/libpf"
	"github.com/cls-tools/consolelogsaver/libpf/pfelf"
	"github.com/cls-tools/consolelogsaver/remotememory"
)

// GetMappings returns this error when no mappings can be extracted.
var ErrNoMappings = errors.New("no mappings")

// systemProcess provides an implementation of the Process interface for a
// process that is currently running on this machine.
type systemProcess struct {
	pid libpf.PID

	remoteMemory remotememory.RemoteMemory

	fileToMapping map[string]*Mapping
}

var _ Process = &systemProcess{}

func newSystemProcess(pid libpf.PID) systemProcess {
	return systemProcess{
		pid:          pid,
		remoteMemory: remotememory.NewProcessVirtualMemory(pid),
	}
}

func (sp *systemProcess) PID() libpf.PID {
	return sp.pid
}

func trimMappingPath(path string) string {
	// Trim the deleted indication from the path.
	// See path_with_deleted in linux/fs/d_path.c
	path = strings.TrimSuffix(path, " (deleted)")
	if path == "/dev/zero" {
		// Some JIT engines map JIT area from /dev/zero
		// make it anonymous.
		return ""
	}
	return path
}

func parseMappings(mapsFile io.Reader) ([]Mapping, uint32, error) {
	numParseErrors := uint32(0)
	mappings := make([]Mapping, 0, 32)
	scanner := bufio.NewScanner(mapsFile)
	scanner.Buffer(make([]byte, 256), 8192)
	for scanner.Scan() {
		line := scanner.Text()
		// The path is the sixth column and may contain spaces.
		fields := strings.SplitN(strings.TrimSpace(line), " ", 6)
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if len(fields) < 5 {
			numParseErrors++
			continue
		}
		if len(fields) == 5 {
			fields = append(fields, "")
		}
		startAddr, endAddr, ok := strings.Cut(fields[0], "-")
		if !ok {
			numParseErrors++
			continue
		}

		mapsFlags := fields[1]
		if len(mapsFlags) < 3 {
			numParseErrors++
			continue
		}
		flags := elf.ProgFlag(0)
		if mapsFlags[0] == 'r' {
			flags |= elf.PF_R
		}
		if mapsFlags[1] == 'w' {
			flags |= elf.PF_W
		}
		if mapsFlags[2] == 'x' {
			flags |= elf.PF_X
		}

		// Ignore non-readable and non-executable mappings
		if flags&(elf.PF_R|elf.PF_X) == 0 {
			continue
		}
		inode, err := strconv.ParseUint(fields[4], 10, 64)
		if err != nil {
			log.Debugf("inode: failed to convert %s to uint64: %v", fields[4], err)
			numParseErrors++
			continue
		}

		majorDev, minorDev, ok := strings.Cut(fields[3], ":")
		if !ok {
			numParseErrors++
			continue
		}
		major, err := strconv.ParseUint(majorDev, 16, 64)
		if err != nil {
			log.Debugf("major device: failed to convert %s to uint64: %v", majorDev, err)
			numParseErrors++
			continue
		}
		minor, err := strconv.ParseUint(minorDev, 16, 64)
		if err != nil {
			log.Debugf("minor device: failed to convert %s to uint64: %v", minorDev, err)
			numParseErrors++
			continue
		}
		device := major<<8 + minor

		var path string
		if inode == 0 {
			if fields[5] == "[vdso]" {
				// Map to something filename looking with synthesized inode
				path = VdsoPathName
				device = 0
				inode = vdsoInode
			} else if fields[5] != "" {
				// Ignore other mappings that are invalid, non-existent or are special pseudo-files
				continue
			}
		} else {
			path = trimMappingPath(fields[5])
		}

		vaddr, err := strconv.ParseUint(startAddr, 16, 64)
		if err != nil {
			log.Debugf("vaddr: failed to convert %s to uint64: %v", startAddr, err)
			numParseErrors++
			continue
		}
		vend, err := strconv.ParseUint(endAddr, 16, 64)
		if err != nil {
			log.Debugf("vend: failed to convert %s to uint64: %v", endAddr, err)
			numParseErrors++
			continue
		}
		length := vend - vaddr

		fileOffset, err := strconv.ParseUint(fields[2], 16, 64)
		if err != nil {
			log.Debugf("fileOffset: failed to convert %s to uint64: %v", fields[2], err)
			numParseErrors++
			continue
		}

		mappings = append(mappings, Mapping{
			Vaddr:      vaddr,
			Length:     length,
			Flags:      flags,
			FileOffset: fileOffset,
			Device:     device,
			Inode:      inode,
			Path:       path,
		})
	}
	return mappings, numParseErrors, scanner.Err()
}

// GetMappings will process the mappings file from proc. Additionally,
// a reverse map from mapping filename to a Mapping node is built to allow
// OpenELF opening ELF files using the corresponding proc map_files entry.
// WARNING: This implementation does not support calling GetMappings
// concurrently with itself, or with OpenELF.
func (sp *systemProcess) GetMappings() ([]Mapping, uint32, error) {
	mapsFile, err := os.Open(fmt.Sprintf("/proc/%d/maps", sp.pid))
	if err != nil {
		return nil, 0, err
	}
	defer mapsFile.Close()

	mappings, numParseErrors, err := parseMappings(mapsFile)
	if err != nil {
		return mappings, numParseErrors, err
	}
	if len(mappings) == 0 {
		return mappings, numParseErrors, ErrNoMappings
	}

	fileToMapping := make(map[string]*Mapping)
	for idx := range mappings {
		m := &mappings[idx]
		if m.Path == "" {
			continue
		}
		// Keep the lowest mapping of each file, it carries the ELF header.
		if _, ok := fileToMapping[m.Path]; !ok {
			fileToMapping[m.Path] = m
		}
	}
	sp.fileToMapping = fileToMapping
	return mappings, numParseErrors, nil
}

func (sp *systemProcess) Close() error {
	return nil
}

func (sp *systemProcess) GetRemoteMemory() remotememory.RemoteMemory {
	return sp.remoteMemory
}

func (sp *systemProcess) getMappingFile(m *Mapping) string {
	if m.IsAnonymous() || m.IsVDSO() {
		return ""
	}
	return fmt.Sprintf("/proc/%v/map_files/%x-%x", sp.pid, m.Vaddr, m.Vaddr+m.Length)
}

func (sp *systemProcess) OpenELF(file string) (*pfelf.File, error) {
	// Prefer map_files as it can open deleted files if available.
	if m, ok := sp.fileToMapping[file]; ok && !m.IsVDSO() {
		if f, err := pfelf.Open(sp.getMappingFile(m)); err == nil {
			return f, nil
		}
	}

	// Fall back to opening the file using the process specific root
	return pfelf.Open(path.Join("/proc", strconv.Itoa(int(sp.pid)), "root", file))
}
