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

// Package opcode maps application opcodes to their registered format,
// handler and collective behavior. Registration is monotone and rare;
// lookups are concurrent-read friendly.
package opcode

import (
	"math"
)

// Opcode is an unsigned 32-bit application-level identifier. It must
// round-trip through the wire unchanged.
type Opcode uint32

// Reserved internal opcodes (spec.md §4.B, §6).
const (
	// GrpCreate drives collective creation of a secondary group.
	GrpCreate Opcode = 0xFFFFFFF0 + iota
	// GrpDestroy drives collective destruction of a secondary group.
	GrpDestroy
	// UriLookup resolves a rank's transport address.
	UriLookup
	// HgRPCID is the single transport-level message identifier every
	// application RPC is carried under; the real opcode lives in the
	// common header payload (spec.md §4.B).
	HgRPCID
)

// Field kinds understood by the wire codec's body pack/unpack (wire.Codec).
type Kind int

const (
	KindUint8 Kind = iota
	KindUint32
	KindUint64
	KindInt32
	KindInt64
	KindString
	KindBytes
	KindRankList
	KindBool
)

// FieldDescriptor names one field of an opcode's request or output format.
// The ordered list of descriptors is the single definition wire.PackBody/
// wire.UnpackBody drive off, per spec.md §4.C.
type FieldDescriptor struct {
	Name string
	Kind Kind
	// MaxLen bounds KindString/KindBytes/KindRankList payloads; 0 means
	// unbounded (still subject to MaxInputSize/MaxOutputSize overall).
	MaxLen int
}

// Size-of-type used to compute an OpcodeInfo's nominal input/output size
// from its field-descriptor list. Variable-length kinds count their bound.
func (f FieldDescriptor) sizeOf() int {
	switch f.Kind {
	case KindUint8, KindBool:
		return 1
	case KindUint32, KindInt32:
		return 4
	case KindUint64, KindInt64:
		return 8
	case KindString, KindBytes:
		if f.MaxLen > 0 {
			return f.MaxLen
		}
		return MaxInputSize
	case KindRankList:
		if f.MaxLen > 0 {
			return f.MaxLen * 4
		}
		return MaxInputSize
	default:
		return 0
	}
}

// Wire-format ceilings (spec.md §4.B). A registered opcode's computed
// input/output size must not exceed these.
const (
	MaxInputSize  = 1 << 20 // 1 MiB
	MaxOutputSize = 1 << 20 // 1 MiB
	// GrpIDMax bounds the common header's group-id string (spec.md §3).
	GrpIDMax = 64
	// AddrStrMaxLen bounds a transport self-address string (spec.md §4.A).
	AddrStrMaxLen = 256
)

// CollectiveOps are the optional per-opcode callbacks a tree-based CoRPC
// dispatch (package corpc) invokes while folding child replies into the
// node's own output (spec.md §4.F).
type CollectiveOps struct {
	// Aggregate folds a child's decoded output into the accumulator.
	// Returning fail=true short-circuits remaining aggregation for this
	// collective root (spec.md §4.F's fail_out policy).
	Aggregate func(acc, child map[string]any) (fail bool)
	// PreForward optionally rewrites the body forwarded to each child
	// before it is sent (e.g. to strip a field only the issuing node
	// needs). A nil PreForward forwards the body unchanged.
	PreForward func(body map[string]any) map[string]any
}

// HandlerFunc is the server-side user function invoked once an RPC's
// body has been unpacked. It returns the output body to reply with, or
// an error to fail the RPC with PROTO/MISC at the caller's discretion.
type HandlerFunc func(req Request) (map[string]any, error)

// Request is the minimal view a HandlerFunc needs of the inbound RPC:
// the decoded body and addressing metadata useful for logging/ACLs.
type Request struct {
	Opc    Opcode
	Rank   uint32
	Cookie uint64
	Body   map[string]any
}

// OpcodeInfo is immutable after registration (spec.md §3).
type OpcodeInfo struct {
	Opc            Opcode
	RequestFormat  []FieldDescriptor
	ResponseFormat []FieldDescriptor
	Handler        HandlerFunc
	Collective     *CollectiveOps
	NoReply        bool

	inputSize  int
	outputSize int
}

// InputSize returns the nominal size in bytes computed from RequestFormat.
func (o *OpcodeInfo) InputSize() int { return o.inputSize }

// OutputSize returns the nominal size in bytes computed from ResponseFormat.
func (o *OpcodeInfo) OutputSize() int { return o.outputSize }

func sizeOfFormat(fmt []FieldDescriptor) int {
	total := 0
	for _, f := range fmt {
		total += f.sizeOf()
		if total > math.MaxInt32 {
			return math.MaxInt32
		}
	}
	return total
}
