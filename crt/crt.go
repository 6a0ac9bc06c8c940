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

// Package crt is the top-level facade (spec.md §5): Init wires a
// transport class, one or more progress contexts, the opcode registry
// and the process's primary group into a Runtime; Send is the single
// entry point application code uses to issue an RPC, picking between a
// transport round trip and the local-address short-circuit.
package crt

import (
	"context"
	"sync"

	"github.com/gocrt/crt/crtcfg"
	"github.com/gocrt/crt/crterr"
	"github.com/gocrt/crt/crtctx"
	"github.com/gocrt/crt/crtlog"
	"github.com/gocrt/crt/group"
	"github.com/gocrt/crt/opcode"
	"github.com/gocrt/crt/rpc"
	"github.com/gocrt/crt/wire"
	"github.com/gocrt/crt/xport"
)

// Runtime is a single process's live CRT instance: one transport class,
// N progress contexts sharing one opcode registry, and the group used to
// resolve peer addresses and the process's own rank.
type Runtime struct {
	cfg      crtcfg.Runtime
	registry *opcode.Registry
	class    xport.Class
	log      *crtlog.Logger

	grp Group
	svc group.Service

	selfRank  uint32
	selfKnown bool

	mu      sync.Mutex
	ctxs    []*crtctx.Context
	xctxs   []xport.Context
	closed  bool
}

// Group is the subset of group.Group Init needs; it is a separate name
// here only so callers don't have to import package group just to pass
// one through to Init.
type Group = group.Group

// Init brings up numContexts progress contexts over cfg's transport
// class (SPEC_FULL.md §9's multi-NA re-registration: every context
// independently installs the same dispatch handler against the shared
// registry, so inbound traffic on any context is served identically).
func Init(ctx context.Context, cfg crtcfg.Runtime, numContexts int, grp group.Group, svc group.Service, lg *crtlog.Logger) (*Runtime, error) {
	if numContexts <= 0 {
		numContexts = 1
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry := opcode.NewRegistry(8)
	if err := opcode.Bootstrap(registry); err != nil {
		return nil, err
	}

	class, err := xport.ClassInit(cfg.Info, cfg.IsServer)
	if err != nil {
		return nil, err
	}

	var (
		selfRank  uint32
		selfKnown bool
	)
	if svc != nil && grp != nil {
		if r, err := svc.Rank(grp); err == nil {
			selfRank, selfKnown = r, true
		}
	}

	rt := &Runtime{
		cfg:       cfg,
		registry:  registry,
		class:     class,
		log:       lg,
		grp:       grp,
		svc:       svc,
		selfRank:  selfRank,
		selfKnown: selfKnown,
	}

	for i := 0; i < numContexts; i++ {
		xctx, err := class.ContextCreate(i)
		if err != nil {
			rt.Finalize()
			return nil, err
		}
		if err := xctx.SetInboundHandler(rt.dispatch); err != nil {
			rt.Finalize()
			return nil, err
		}
		rt.xctxs = append(rt.xctxs, xctx)
		rt.ctxs = append(rt.ctxs, crtctx.Create(i, xctx, cfg.MaxInflight))
	}

	_ = ctx
	return rt, nil
}

// Registry exposes the shared opcode registry so application code can
// Register its own opcodes before issuing any RPCs.
func (rt *Runtime) Registry() *opcode.Registry { return rt.registry }

// SelfAddress is this runtime's bindable transport address.
func (rt *Runtime) SelfAddress() string { return rt.class.SelfAddress() }

// Context returns the ctxIdx'th progress context, for a caller driving
// its own Progress loop.
func (rt *Runtime) Context(ctxIdx int) *crtctx.Context {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if ctxIdx < 0 || ctxIdx >= len(rt.ctxs) {
		return nil
	}
	return rt.ctxs[ctxIdx]
}

// dispatch is the server-side handler shared by every context: unpack
// header, look up the opcode, unpack body, invoke the handler, pack the
// reply (spec.md §4.D). It is the generalized form of the per-test
// serveEcho helper package rpc's own tests use.
func (rt *Runtime) dispatch(in []byte) []byte {
	h, cursor, err := wire.UnpackHeader(in)
	if err != nil {
		return nil
	}

	info, err := rt.registry.Lookup(h.Opc, false)
	if err != nil {
		if rt.log != nil {
			rt.log.Error("dispatch: unknown opcode", h.Opc)
		}
		return nil
	}

	body, err := wire.UnpackBody(info.RequestFormat, in[cursor:])
	if err != nil {
		return nil
	}

	if info.Handler == nil {
		return nil
	}
	out, err := info.Handler(opcode.Request{Opc: h.Opc, Rank: h.Rank, Cookie: h.Cookie, Body: body})
	if err != nil {
		if rt.log != nil {
			rt.log.Error("dispatch: handler failed", h.Opc, err)
		}
		return nil
	}
	if h.Flags&wire.FlagNoReply != 0 {
		return nil
	}

	replyHdr := wire.PackHeader(wire.Header{
		Magic: wire.Magic, Version: wire.Version,
		Opc: h.Opc, Rank: h.Rank, Cookie: h.Cookie,
	})
	replyBody, err := wire.PackBody(info.ResponseFormat, out)
	if err != nil {
		return nil
	}
	return append(replyHdr, replyBody...)
}

// isLocal reports whether ep addresses this process's own rank within
// its primary group (SPEC_FULL.md §9's local-address short-circuit).
func (rt *Runtime) isLocal(ep rpc.Endpoint) bool {
	return rt.grp != nil && rt.grp.Primary() && rt.selfKnown && ep.Rank == rt.selfRank
}

// Send issues an RPC over context ctxIdx to ep, resolving ep's address
// via the configured group (or short-circuiting locally when ep
// addresses this process's own rank).
func (rt *Runtime) Send(ctx context.Context, ctxIdx int, ep rpc.Endpoint, opc opcode.Opcode, input map[string]any, cb rpc.CompleteFunc, timeoutUS int64) (*rpc.RPC, error) {
	rt.mu.Lock()
	if rt.closed || ctxIdx < 0 || ctxIdx >= len(rt.ctxs) {
		rt.mu.Unlock()
		return nil, crterr.New(crterr.UNINIT)
	}
	xctx := rt.xctxs[ctxIdx]
	crtCtx := rt.ctxs[ctxIdx]
	rt.mu.Unlock()

	groupSize := 1
	if rt.grp != nil {
		groupSize = rt.grp.Size()
	}

	local := rt.isLocal(ep)

	var addr string
	if !local {
		var ok bool
		if rt.grp != nil {
			addr, ok = rt.grp.LookupAddr(ctx, ctxIdx, ep.Rank, ep.Tag)
		}
		if !ok {
			if rt.log != nil {
				rt.log.Debug("send: no cached address for rank", ep.Rank)
			}
			return nil, crterr.New(crterr.NONEXIST)
		}
	}

	r, err := rpc.Create(rt.registry, xctx, addr, ep, groupSize)
	if err != nil {
		return nil, err
	}
	if err := r.SetOpcode(rt.registry, opc); err != nil {
		return nil, err
	}
	r.Input = input

	if local {
		return r, r.SendLocal(cb, nil)
	}
	if timeoutUS <= 0 {
		timeoutUS = rt.cfg.DefaultTimeoutUS()
	}
	return r, r.Send(crtCtx, cb, nil, timeoutUS)
}

// Finalize closes every progress context and the transport class
// (spec.md §4.E/§4.A's shutdown path).
func (rt *Runtime) Finalize() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return nil
	}
	rt.closed = true

	var first error
	for _, xc := range rt.xctxs {
		if err := xc.Close(); err != nil && first == nil {
			first = err
		}
	}
	if rt.class != nil {
		if err := rt.class.Close(); err != nil && first == nil {
			first = err
		}
	}
	if rt.log != nil {
		_ = rt.log.Close()
	}
	return first
}
