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

package rpc

import (
	"encoding/binary"
	"time"

	"github.com/hashicorp/go-uuid"

	"github.com/gocrt/crt/crterr"
	"github.com/gocrt/crt/crtctx"
	liberr "github.com/gocrt/crt/errors"
	"github.com/gocrt/crt/opcode"
	"github.com/gocrt/crt/wire"
	"github.com/gocrt/crt/xport"
)

// DefaultTimeoutUS is used by send_sync when the caller passes 0
// (spec.md §4.D's DEFAULT_TIMEOUT_US).
const DefaultTimeoutUS = 60 * 1000 * 1000

// Rank satisfies crtctx.Trackable.
func (r *RPC) Rank() uint32 { return r.Endpoint.Rank }

// Promote satisfies crtctx.Trackable: invoked when a queued RPC is
// admitted off the wait queue, it performs the deferred transport send.
func (r *RPC) Promote() error {
	r.mu.Lock()
	r.state = ReqSent
	r.mu.Unlock()
	return r.forwardNow()
}

// Timeout satisfies crtctx.Trackable (spec.md §4.E's expired-timeout sweep).
func (r *RPC) Timeout() {
	r.mu.Lock()
	if r.state.terminal() {
		r.mu.Unlock()
		return
	}
	r.state = Timeout
	cb, arg := r.completeCB, r.arg
	r.mu.Unlock()

	if cb != nil {
		cb(r, crterr.New(crterr.TIMEDOUT))
	}
	_ = arg
	// Untrack/DecRef happen later, in onReply's Timeout-state branch, once
	// the forward's own completion (reply or transport error) arrives; the
	// tcp and nats Cancel enqueue no callback of their own.
	r.xctx.Cancel(r.handle)
}

func newCookie() uint64 {
	id, err := uuid.GenerateUUID()
	if err != nil || len(id) < 8 {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64([]byte(id)[:8])
}

func (r *RPC) forwardNow() error {
	hdr := r.packHeader(headerFlags(r.coll, r.forward, r.info.NoReply), r.cookie())
	body, err := wire.PackBody(r.info.RequestFormat, r.Input)
	if err != nil {
		return err
	}
	r.handle.SetInput(append(hdr, body...))
	r.inputGot = true

	return r.xctx.Forward(r.handle, func(h *xport.Handle, ferr error) {
		r.onReply(ferr)
	})
}

func (r *RPC) cookie() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cookieVal == 0 {
		r.cookieVal = newCookie()
	}
	return r.cookieVal
}

// Send runs spec.md §4.D's send: it tracks the RPC on ctx and, once
// admitted, forwards it over the transport. Collective RPCs take the same
// path; Send does not hand them to package corpc.
func (r *RPC) Send(ctx *crtctx.Context, cb CompleteFunc, arg any, timeoutUS int64) error {
	r.mu.Lock()
	if r.state != Inited {
		r.mu.Unlock()
		return crterr.New(crterr.ALREADY)
	}
	r.completeCB = cb
	r.arg = arg
	if timeoutUS <= 0 {
		timeoutUS = DefaultTimeoutUS
	}
	r.mu.Unlock()

	result, entry := ctx.Track(r, timeoutUS)
	r.trackEntry = entry
	r.ctxRef = ctx
	r.AddRef() // released by onReply when the forward's completion arrives

	if result == crtctx.InInflight {
		r.mu.Lock()
		r.state = ReqSent
		r.mu.Unlock()

		if err := r.forwardNow(); err != nil {
			r.mu.Lock()
			r.state = Inited
			r.mu.Unlock()
			ctx.Untrack(r, entry)
			r.DecRef()
			return err
		}
	}
	return nil
}

func (r *RPC) onReply(ferr error) {
	r.mu.Lock()
	if r.state == Timeout {
		// The timeout sweeper already invoked the user callback; a
		// late CANCELED ack from the transport just frees bookkeeping.
		r.mu.Unlock()
		if r.ctxRef != nil {
			r.ctxRef.Untrack(r, r.trackEntry)
		}
		r.DecRef()
		return
	}

	r.state = ReplyRecved
	cb, arg := r.completeCB, r.arg
	var outErr error
	if ferr != nil {
		if ce, ok := ferr.(liberr.Error); ok && ce.IsCode(crterr.CANCELED) {
			r.state = Canceled
		}
		outErr = ferr
	} else {
		reply := r.handle.GetOutput()
		var out map[string]any
		_, cursor, perr := wire.UnpackHeader(reply)
		if perr == nil {
			out, perr = wire.UnpackBody(r.info.ResponseFormat, reply[cursor:])
		}
		if perr != nil {
			outErr = perr
		} else {
			r.Output = out
			r.outputGot = true
			r.state = Completed
		}
	}
	r.mu.Unlock()

	if r.ctxRef != nil {
		r.ctxRef.Untrack(r, r.trackEntry)
	}
	if cb != nil {
		cb(r, outErr)
	}
	_ = arg
	r.DecRef()
}

// ReplySend runs spec.md §4.D's reply_send: addref, transport respond,
// decref in the completion callback.
func (r *RPC) ReplySend(ctx *crtctx.Context) error {
	hdr := r.packHeader(headerFlags(r.coll, false, r.info.NoReply), r.cookie())
	body, err := wire.PackBody(r.info.ResponseFormat, r.Output)
	if err != nil {
		return err
	}
	r.handle.SetOutput(append(hdr, body...))
	r.outputGot = true

	r.AddRef()
	return r.xctx.Respond(r.handle, func(h *xport.Handle, rerr error) {
		r.DecRef()
	})
}

// Abort runs spec.md §4.D's abort: best-effort transport cancel; the
// actual state transition happens in the completion callback.
func (r *RPC) Abort() {
	r.xctx.Cancel(r.handle)
}

// SendLocal completes this RPC immediately by invoking its opcode's
// handler in place, bypassing the transport and context tracking
// entirely. This is the local-address short-circuit (SPEC_FULL.md §9,
// grounded on crt_rpc.c special-casing an endpoint that resolves to the
// calling process's own rank within its primary group): the caller
// decides when SendLocal applies rather than Create, since only the
// caller knows the process's own rank and primary-group membership.
func (r *RPC) SendLocal(cb CompleteFunc, arg any) error {
	cookie := r.cookie()
	r.mu.Lock()
	if r.state != Inited {
		r.mu.Unlock()
		return crterr.New(crterr.ALREADY)
	}
	r.state = ReqSent
	handler := r.info.Handler
	body := r.Input
	req := opcode.Request{Opc: r.Opc, Rank: r.Endpoint.Rank, Cookie: cookie, Body: body}
	r.mu.Unlock()

	var (
		out map[string]any
		err error
	)
	if handler != nil {
		out, err = handler(req)
	}

	r.mu.Lock()
	r.Output = out
	if err == nil {
		r.outputGot = true
		r.state = Completed
	} else {
		r.state = ReplyRecved
	}
	r.mu.Unlock()

	if cb != nil {
		cb(r, err)
	}
	_ = arg
	r.DecRef()
	return nil
}

// SendSync runs spec.md §4.D's send_sync: send with an internal
// completion flag, then poll progress until done or the deadline.
func (r *RPC) SendSync(ctx *crtctx.Context, timeoutUS int64) error {
	if timeoutUS <= 0 {
		timeoutUS = DefaultTimeoutUS
	}

	done := make(chan error, 1)
	if err := r.Send(ctx, func(_ *RPC, err error) { done <- err }, nil, timeoutUS); err != nil {
		return err
	}

	deadline := time.Now().Add(time.Duration(timeoutUS) * time.Microsecond)
	for {
		select {
		case err := <-done:
			return err
		default:
		}
		if time.Now().After(deadline) {
			return crterr.New(crterr.TIMEDOUT)
		}
		_ = ctx.Progress(1000)
	}
}
