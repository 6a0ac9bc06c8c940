/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package wire implements the deterministic pack/unpack of the common
// header and per-opcode body payloads that every RPC carries (spec.md
// §4.C). Header packing is a fixed little-endian binary layout; body
// packing is canonical CBOR driven by a field-descriptor list, so every
// registered type has exactly one encoding definition.
package wire

import (
	"bytes"
	"encoding/binary"

	"github.com/gocrt/crt/crterr"
	"github.com/gocrt/crt/opcode"
)

// Magic identifies this wire protocol version; unpacking any other value
// fails with PROTO (spec.md §4.C).
const Magic uint32 = 0x43525421 // "CRT!"

// Version is the current wire format revision.
const Version uint32 = 1

// Header flag bits (spec.md §3).
const (
	FlagColl uint32 = 1 << iota
	FlagForward
	FlagNoReply
)

// HeaderSize is the packed, fixed-size length of Header in bytes:
// magic(4) + version(4) + opc(4) + flags(4) + rank(4) + grp_id(GrpIDMax) + cookie(8).
const HeaderSize = 4 + 4 + 4 + 4 + 4 + opcode.GrpIDMax + 8

// Header is the common header every RPC message starts with (spec.md §3).
type Header struct {
	Magic   uint32
	Version uint32
	Opc     opcode.Opcode
	Flags   uint32
	Rank    uint32
	GrpID   string
	Cookie  uint64
}

// PackHeader serializes h into its wire-exact little-endian layout.
// Packing is pure: it never allocates beyond the returned buffer.
func PackHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)

	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], Version)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.Opc))
	binary.LittleEndian.PutUint32(buf[12:16], h.Flags)
	binary.LittleEndian.PutUint32(buf[16:20], h.Rank)

	grp := buf[20 : 20+opcode.GrpIDMax]
	n := copy(grp, h.GrpID)
	for i := n; i < len(grp); i++ {
		grp[i] = 0
	}

	binary.LittleEndian.PutUint64(buf[20+opcode.GrpIDMax:HeaderSize], h.Cookie)
	return buf
}

// UnpackHeader parses a Header off the front of buf and returns the
// cursor position immediately following it. A magic or version mismatch
// fails with PROTO (spec.md §4.C).
func UnpackHeader(buf []byte) (Header, int, error) {
	if len(buf) < HeaderSize {
		return Header{}, 0, crterr.New(crterr.PROTO)
	}

	magic := binary.LittleEndian.Uint32(buf[0:4])
	version := binary.LittleEndian.Uint32(buf[4:8])
	if magic != Magic || version != Version {
		return Header{}, 0, crterr.New(crterr.PROTO)
	}

	h := Header{
		Magic:   magic,
		Version: version,
		Opc:     opcode.Opcode(binary.LittleEndian.Uint32(buf[8:12])),
		Flags:   binary.LittleEndian.Uint32(buf[12:16]),
		Rank:    binary.LittleEndian.Uint32(buf[16:20]),
	}

	grp := buf[20 : 20+opcode.GrpIDMax]
	if i := bytes.IndexByte(grp, 0); i >= 0 {
		h.GrpID = string(grp[:i])
	} else {
		h.GrpID = string(grp)
	}

	h.Cookie = binary.LittleEndian.Uint64(buf[20+opcode.GrpIDMax : HeaderSize])
	return h, HeaderSize, nil
}
