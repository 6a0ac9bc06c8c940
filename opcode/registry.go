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

package opcode

import (
	"sort"
	"sync"

	"github.com/gocrt/crt/crterr"
)

// Registry is the concurrent-read/exclusive-write opcode → OpcodeInfo map
// (spec.md §4.B). Registration happens once at startup per opcode; the
// steady-state workload is many concurrent lookups from dispatch.
type Registry struct {
	mu    sync.RWMutex
	bits  uint
	table map[Opcode]*OpcodeInfo
}

// NewRegistry builds an empty registry sized by a power-of-two bits hint
// (spec.md §3's Opcode Map); bits only pre-sizes the backing map, it does
// not bound the number of registrations.
func NewRegistry(bits uint) *Registry {
	cap := 1 << bits
	return &Registry{
		bits:  bits,
		table: make(map[Opcode]*OpcodeInfo, cap),
	}
}

// Register adds opc to the table. It rejects duplicates with EXIST and
// oversized formats with INVAL (spec.md §4.B).
func (r *Registry) Register(info OpcodeInfo) error {
	info.inputSize = sizeOfFormat(info.RequestFormat)
	info.outputSize = sizeOfFormat(info.ResponseFormat)

	if info.inputSize > MaxInputSize || info.outputSize > MaxOutputSize {
		return crterr.New(crterr.INVAL)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.table[info.Opc]; ok {
		return crterr.New(crterr.EXIST)
	}

	cp := info
	r.table[info.Opc] = &cp
	return nil
}

// Lookup resolves opc. The locked parameter follows spec.md §4.B exactly:
// when locked is true the caller already holds the registry's read lock
// (via RLock/RUnlock below) and Lookup must not acquire it again; when
// locked is false Lookup takes its own read lock for the single call.
func (r *Registry) Lookup(opc Opcode, locked bool) (*OpcodeInfo, error) {
	if !locked {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}

	info, ok := r.table[opc]
	if !ok {
		return nil, crterr.New(crterr.UNREG)
	}
	return info, nil
}

// RLock/RUnlock let a caller batch several locked Lookup calls (e.g. a
// dispatch loop resolving the same opcode for every inbound message on a
// progress tick) under a single read-lock acquisition.
func (r *Registry) RLock()   { r.mu.RLock() }
func (r *Registry) RUnlock() { r.mu.RUnlock() }

// Opcodes returns the sorted list of currently registered opcodes, mostly
// useful for diagnostics and tests.
func (r *Registry) Opcodes() []Opcode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Opcode, 0, len(r.table))
	for o := range r.table {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Bootstrap pre-registers the internal opcodes every runtime needs
// regardless of application registrations (spec.md §4.B, §6): GRP_CREATE,
// GRP_DESTROY, URI_LOOKUP and the single transport-level CRT_HG_RPCID.
func Bootstrap(r *Registry) error {
	internal := []OpcodeInfo{
		{
			Opc: GrpCreate,
			RequestFormat: []FieldDescriptor{
				{Name: "grp_id", Kind: KindString, MaxLen: GrpIDMax},
				{Name: "int_grp_id", Kind: KindUint64},
				{Name: "membs", Kind: KindRankList},
				{Name: "initiator", Kind: KindUint32},
			},
			ResponseFormat: []FieldDescriptor{
				{Name: "failed_ranks", Kind: KindRankList},
				{Name: "rank", Kind: KindUint32},
				{Name: "rc", Kind: KindInt32},
			},
		},
		{
			Opc: GrpDestroy,
			RequestFormat: []FieldDescriptor{
				{Name: "grp_id", Kind: KindString, MaxLen: GrpIDMax},
				{Name: "initiator", Kind: KindUint32},
			},
			ResponseFormat: []FieldDescriptor{
				{Name: "failed_ranks", Kind: KindRankList},
				{Name: "rank", Kind: KindUint32},
				{Name: "rc", Kind: KindInt32},
			},
		},
		{
			Opc: UriLookup,
			RequestFormat: []FieldDescriptor{
				{Name: "grp_id", Kind: KindString, MaxLen: GrpIDMax},
				{Name: "rank", Kind: KindUint32},
			},
			ResponseFormat: []FieldDescriptor{
				{Name: "uri", Kind: KindString, MaxLen: AddrStrMaxLen},
				{Name: "rc", Kind: KindInt32},
			},
		},
		{
			Opc:     HgRPCID,
			NoReply: false,
		},
	}

	for _, info := range internal {
		if err := r.Register(info); err != nil {
			return err
		}
	}
	return nil
}
