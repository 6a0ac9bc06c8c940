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

// Package rpc implements the RPC lifecycle (spec.md §4.D): create,
// addref/decref, send, reply_send, abort and send_sync over the object
// described by spec.md §3's "RPC (private)" data model.
package rpc

import (
	"sync"

	"github.com/gocrt/crt/crterr"
	"github.com/gocrt/crt/crtctx"
	"github.com/gocrt/crt/opcode"
	"github.com/gocrt/crt/wire"
	"github.com/gocrt/crt/xport"
)

// State is one of an RPC's lifecycle states (spec.md §4.D's state machine).
type State int

const (
	Inited State = iota
	Queued
	ReqSent
	ReplyRecved
	Completed
	Canceled
	Timeout
)

func (s State) terminal() bool {
	return s == Completed || s == Canceled || s == Timeout
}

// Endpoint addresses a peer rank within a group (spec.md §3).
type Endpoint struct {
	GroupID string
	Rank    uint32
	Tag     uint32
}

// CompleteFunc is the user completion callback, invoked exactly once per
// RPC with the terminal error (nil on success).
type CompleteFunc func(r *RPC, err error)

// RPC is the public view plus the private lifecycle state described by
// spec.md §3. Exported fields are the "public view"; the rest mirrors the
// private bookkeeping (state machine, refcount, transport handle).
type RPC struct {
	Opc      opcode.Opcode
	Endpoint Endpoint
	Input    map[string]any
	Output   map[string]any

	ctx    *opcode.Registry
	xctx   xport.Context
	handle *xport.Handle
	addr   string

	info *opcode.OpcodeInfo

	srv     bool
	forward bool
	coll    bool

	completeCB CompleteFunc
	arg        any

	mu       sync.Mutex
	refcount int
	state    State

	inputGot  bool
	outputGot bool
	cookieVal uint64

	ctxRef     *crtctx.Context
	trackEntry *crtctx.TrackHandle
}

// Create validates the endpoint, looks up the opcode, allocates the RPC
// and binds a transport handle. Initial state is Inited, refcount 1
// (spec.md §4.D).
func Create(registry *opcode.Registry, xctx xport.Context, addr string, ep Endpoint, groupSize int) (*RPC, error) {
	if xctx == nil || registry == nil {
		return nil, crterr.New(crterr.UNINIT)
	}
	if int(ep.Rank) >= groupSize {
		return nil, crterr.New(crterr.INVAL)
	}

	info, err := registry.Lookup(opcode.HgRPCID, false)
	if err != nil {
		return nil, err
	}

	h, err := xctx.CreateHandle(addr, uint32(opcode.HgRPCID))
	if err != nil {
		return nil, crterr.New(crterr.HG)
	}

	return &RPC{
		ctx:      registry,
		xctx:     xctx,
		handle:   h,
		addr:     addr,
		info:     info,
		Endpoint: ep,
		refcount: 1,
		state:    Inited,
	}, nil
}

// SetOpcode binds the application opcode this RPC carries in its common
// header; it must be looked up so Send can validate against its format.
func (r *RPC) SetOpcode(registry *opcode.Registry, opc opcode.Opcode) error {
	info, err := registry.Lookup(opc, false)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.Opc = opc
	r.info = info
	r.coll = info.Collective != nil
	r.mu.Unlock()
	return nil
}

// State reports the RPC's current lifecycle state.
func (r *RPC) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IsCollective reports whether this RPC's opcode carries collective_ops.
func (r *RPC) IsCollective() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.coll
}

// AddRef increments the refcount under the per-RPC lock.
func (r *RPC) AddRef() {
	r.mu.Lock()
	r.refcount++
	r.mu.Unlock()
}

// DecRef decrements the refcount; at 0 it runs destroy (spec.md §4.D:
// free_output/free_input, priv_fini, transport handle destroy, free).
func (r *RPC) DecRef() {
	r.mu.Lock()
	r.refcount--
	zero := r.refcount == 0
	r.mu.Unlock()
	if zero {
		r.destroy()
	}
}

func (r *RPC) destroy() {
	if r.outputGot {
		r.handle.FreeOutput()
		r.outputGot = false
	}
	if r.inputGot && !r.forward {
		r.handle.FreeInput()
		r.inputGot = false
	}
	if !r.forward {
		r.xctx.DestroyHandle(r.handle)
	}
}

// packHeader builds this RPC's common header.
func (r *RPC) packHeader(flags uint32, cookie uint64) []byte {
	h := wire.Header{
		Magic:   wire.Magic,
		Version: wire.Version,
		Opc:     r.Opc,
		Flags:   flags,
		Rank:    r.Endpoint.Rank,
		GrpID:   r.Endpoint.GroupID,
		Cookie:  cookie,
	}
	return wire.PackHeader(h)
}

func headerFlags(coll, forward, noReply bool) uint32 {
	var f uint32
	if coll {
		f |= wire.FlagColl
	}
	if forward {
		f |= wire.FlagForward
	}
	if noReply {
		f |= wire.FlagNoReply
	}
	return f
}
