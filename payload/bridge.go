// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package payload // import "github.com/cls-tools/consolelogsaver/payload"

import (
	"encoding/binary"
	"fmt"

	"github.com/cls-tools/consolelogsaver/transfer"
)

// Bridge produces transfer buffers from the console log of the editor.
type Bridge struct {
	Runtime   Runtime
	Allocator Allocator
	Mailbox   Mailbox
}

// members holds the resolved runtime members Save needs.
type members struct {
	logEntry      Class
	entryMessage  Field
	entryMode     Field
	startGetting  Method
	getEntry      Method
	endGetting    Method
	unityVersion  Method
	osDescription Method
	buildTarget   Method
	currentDir    Method
}

type classRef struct {
	assembly, namespace, name string
}

var (
	logEntryClass   = classRef{"UnityEditor", "UnityEditor", "LogEntry"}
	logEntriesClass = classRef{"UnityEditor", "UnityEditor", "LogEntries"}
	buildSettings   = classRef{"UnityEditor", "UnityEditor", "EditorUserBuildSettings"}
	application     = classRef{"UnityEngine", "UnityEngine", "Application"}
	runtimeInfo     = classRef{"mscorlib", "System.Runtime.InteropServices", "RuntimeInformation"}
	directory       = classRef{"mscorlib", "System.IO", "Directory"}
)

// resolver accumulates the first resolution error.
type resolver struct {
	rt  Runtime
	err error
}

func (r *resolver) class(c classRef) Class {
	if r.err != nil {
		return 0
	}
	cls, err := r.rt.ResolveClass(c.assembly, c.namespace, c.name)
	if err != nil {
		r.err = fmt.Errorf("class %s.%s: %w", c.namespace, c.name, err)
	}
	return cls
}

func (r *resolver) method(cls Class, desc string) Method {
	if r.err != nil {
		return 0
	}
	m, err := r.rt.ResolveMethod(cls, desc)
	if err != nil {
		r.err = fmt.Errorf("method %s: %w", desc, err)
	}
	return m
}

func (r *resolver) getter(cls Class, property string) Method {
	if r.err != nil {
		return 0
	}
	m, err := r.rt.ResolveGetter(cls, property)
	if err != nil {
		r.err = fmt.Errorf("property %s: %w", property, err)
	}
	return m
}

func (r *resolver) field(cls Class, name string) Field {
	if r.err != nil {
		return 0
	}
	f, err := r.rt.ResolveField(cls, name)
	if err != nil {
		r.err = fmt.Errorf("field %s: %w", name, err)
	}
	return f
}

func resolve(rt Runtime) (*members, error) {
	r := &resolver{rt: rt}
	m := &members{}
	m.logEntry = r.class(logEntryClass)
	m.entryMessage = r.field(m.logEntry, "message")
	m.entryMode = r.field(m.logEntry, "mode")

	entries := r.class(logEntriesClass)
	m.startGetting = r.method(entries, "int:StartGettingEntries()")
	m.getEntry = r.method(entries, ":GetEntryInternal(int,UnityEditor.LogEntry)")
	m.endGetting = r.method(entries, ":EndGettingEntries()")

	m.buildTarget = r.getter(r.class(buildSettings), "activeBuildTarget")
	m.unityVersion = r.getter(r.class(application), "unityVersion")
	m.osDescription = r.getter(r.class(runtimeInfo), "OSDescription")
	m.currentDir = r.method(r.class(directory), "System.String:GetCurrentDirectory()")
	return m, r.err
}

// staticString invokes a static method returning a string.
func (b *Bridge) staticString(m Method, stringify bool) ([]uint16, error) {
	obj, err := b.Runtime.Invoke(m, 0)
	if err != nil {
		return nil, err
	}
	if stringify {
		if obj, err = b.Runtime.ToString(obj); err != nil {
			return nil, err
		}
	}
	return b.Runtime.Chars(obj)
}

// encode walks the console log and returns the complete allocation image.
func (b *Bridge) encode() ([]byte, error) {
	m, err := resolve(b.Runtime)
	if err != nil {
		return nil, err
	}
	enc := transfer.NewBuilder(binary.NativeEndian)
	for _, env := range []struct {
		name      string
		getter    Method
		stringify bool
	}{
		{"unity version", m.unityVersion, false},
		{"OS description", m.osDescription, false},
		{"build target", m.buildTarget, true},
		{"current directory", m.currentDir, false},
	} {
		chars, err := b.staticString(env.getter, env.stringify)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", env.name, err)
		}
		enc.WriteUTF16(chars)
	}

	entry, err := b.Runtime.NewObject(m.logEntry)
	if err != nil {
		return nil, fmt.Errorf("log entry: %w", err)
	}
	boxed, err := b.Runtime.Invoke(m.startGetting, 0)
	if err != nil {
		return nil, fmt.Errorf("start getting entries: %w", err)
	}
	// The editor holds its log lock until EndGettingEntries.
	defer func() { _, _ = b.Runtime.Invoke(m.endGetting, 0) }()
	count, err := b.Runtime.UnboxInt32(boxed)
	if err != nil {
		return nil, err
	}
	if err := enc.BeginEntries(int(count)); err != nil {
		return nil, err
	}
	for i := int32(0); i < count; i++ {
		if _, err := b.Runtime.Invoke(m.getEntry, 0, i, entry); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		msg, err := b.Runtime.FieldObject(entry, m.entryMessage)
		if err != nil {
			return nil, fmt.Errorf("entry %d message: %w", i, err)
		}
		chars, err := b.Runtime.Chars(msg)
		if err != nil {
			return nil, fmt.Errorf("entry %d message: %w", i, err)
		}
		mode, err := b.Runtime.FieldInt32(entry, m.entryMode)
		if err != nil {
			return nil, fmt.Errorf("entry %d mode: %w", i, err)
		}
		enc.WriteEntryUTF16(chars, transfer.Mode(uint32(mode)))
	}
	return enc.Finish()
}

// Save encodes the console log into a new allocation and publishes it. A
// buffer still published from an earlier Save is freed first. On error
// nothing is published.
func (b *Bridge) Save() error {
	b.Free()
	buf, err := b.encode()
	if err != nil {
		return err
	}
	addr, err := b.Allocator.Allocate(len(buf))
	if err != nil {
		return err
	}
	copy(b.Allocator.Bytes(addr, len(buf)), buf)
	b.Mailbox.Store(addr + transfer.CapacityHeaderSize)
	return nil
}

// Free releases the published buffer, sized by its capacity header, and
// clears the mailbox. It does nothing when no buffer is published.
func (b *Bridge) Free() {
	loc := b.Mailbox.Load()
	if loc == 0 {
		return
	}
	base := loc - transfer.CapacityHeaderSize
	capacity := transfer.Capacity(binary.NativeEndian,
		b.Allocator.Bytes(base, transfer.CapacityHeaderSize))
	b.Allocator.Release(base, int(capacity))
	b.Mailbox.Store(0)
}
