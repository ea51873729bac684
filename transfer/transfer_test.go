// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func body(t *testing.T, order binary.ByteOrder, doc *Document) []byte {
	t.Helper()
	buf, err := Encode(order, doc)
	require.NoError(t, err)
	return buf[CapacityHeaderSize:]
}

func TestRoundTrip(t *testing.T) {
	tests := map[string]*Document{
		"empty": {Records: []LogRecord{}},
		"hello world": {
			UnityVersion:     "2022.3.22f1",
			OSDescription:    "Linux 6.1.0 #1 SMP",
			BuildTarget:      "StandaloneLinux64",
			CurrentDirectory: "/home/user/Project",
			Records: []LogRecord{
				{Message: "Hello", Mode: 0},
				{Message: "World", Mode: 1},
			},
		},
		"unicode and modes": {
			UnityVersion:     "6000.0.1f1",
			CurrentDirectory: "C:\\Users\\ユーザー\\プロジェクト",
			Records: []LogRecord{
				{Message: "", Mode: math.MaxUint32},
				{Message: "emoji 😀 outside the BMP", Mode: 0x80000000},
				{Message: "multi\nline\r\nmessage", Mode: 0x2_0000},
			},
		},
	}

	for name, doc := range tests {
		for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
			t.Run(name+"/"+order.String(), func(t *testing.T) {
				got, err := DecodeBuffer(order, body(t, order, doc))
				require.NoError(t, err)
				assert.Equal(t, doc, got)
			})
		}
	}
}

func TestHeaders(t *testing.T) {
	order := binary.LittleEndian
	buf, err := Encode(order, &Document{Records: []LogRecord{{Message: "a", Mode: 3}}})
	require.NoError(t, err)

	assert.Equal(t, uint64(len(buf)), Capacity(order, buf))
	n, err := ReadByteLength(order, buf[CapacityHeaderSize:])
	require.NoError(t, err)
	assert.Equal(t, uint64(len(buf)-CapacityHeaderSize-LengthFieldSize), n)
	// version(4) + 4 empty strings(16) + count(4) + "a"(4+2) + mode(4)
	assert.Equal(t, uint64(34), n)
}

func TestByteLengthMismatch(t *testing.T) {
	order := binary.LittleEndian
	b := body(t, order, &Document{Records: []LogRecord{{Message: "Hello"}}})

	short := append([]byte(nil), b...)
	order.PutUint64(short, order.Uint64(short)-1)
	_, err := DecodeBuffer(order, short)
	require.ErrorIs(t, err, ErrCorruptData)

	long := append(append([]byte(nil), b...), 0, 0)
	_, err = DecodeBuffer(order, long)
	require.ErrorIs(t, err, ErrCorruptData)

	huge := append([]byte(nil), b...)
	order.PutUint64(huge, MaxByteLength+1)
	_, err = DecodeBuffer(order, huge)
	require.ErrorIs(t, err, ErrCorruptData)
}

func TestTrailingBytes(t *testing.T) {
	order := binary.LittleEndian
	b := body(t, order, &Document{Records: []LogRecord{}})
	padded := append(append([]byte(nil), b[LengthFieldSize:]...), 0, 0, 0, 0)
	_, err := Decode(order, padded)
	require.ErrorIs(t, err, ErrCorruptData)
}

func TestVersionGate(t *testing.T) {
	order := binary.LittleEndian
	// A bogus string length right after the version would fail too; the
	// version error must win.
	raw := order.AppendUint32(nil, 2)
	raw = order.AppendUint32(raw, 0xffffffff)
	_, err := Decode(order, raw)
	require.ErrorIs(t, err, ErrCorruptData)
	assert.Contains(t, err.Error(), "unsupported version 2")
}

func TestMalformedStrings(t *testing.T) {
	order := binary.LittleEndian
	tests := map[string][]byte{
		"negative length": order.AppendUint32(order.AppendUint32(nil, Version), 0x80000000),
		"overlong string": order.AppendUint32(order.AppendUint32(nil, Version), 100),
		"truncated":       order.AppendUint32(nil, Version)[:3],
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(order, raw)
			require.ErrorIs(t, err, ErrCorruptData)
		})
	}
}

func TestNegativeEntryCount(t *testing.T) {
	order := binary.LittleEndian
	b := NewBuilder(order)
	b.WriteEnvironment("", "", "", "")
	b.WriteInt32(-1)
	raw := b.buf[CapacityHeaderSize+LengthFieldSize:]
	_, err := Decode(order, raw)
	require.ErrorIs(t, err, ErrCorruptData)
}

func TestUnpairedSurrogate(t *testing.T) {
	order := binary.LittleEndian
	b := NewBuilder(order)
	b.WriteEnvironment("", "", "", "")
	require.NoError(t, b.BeginEntries(1))
	b.WriteEntryUTF16([]uint16{'a', 0xd800, 'b'}, 0)
	buf, err := b.Finish()
	require.NoError(t, err)

	doc, err := DecodeBuffer(order, buf[CapacityHeaderSize:])
	require.NoError(t, err)
	assert.Equal(t, "a\uFFFDb", doc.Records[0].Message)
}

func TestBuilderCountMismatch(t *testing.T) {
	b := NewBuilder(binary.LittleEndian)
	b.WriteEnvironment("", "", "", "")
	_, err := b.Finish()
	require.Error(t, err)

	b = NewBuilder(binary.LittleEndian)
	b.WriteEnvironment("", "", "", "")
	require.NoError(t, b.BeginEntries(2))
	b.WriteEntry("only one", 0)
	_, err = b.Finish()
	require.Error(t, err)
}
