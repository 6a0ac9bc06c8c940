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

// Package xport is the transport adapter (spec.md §4.A): a class/context
// abstraction over a pluggable network-access backend (tcp, nats), with a
// bounded-wait address-lookup helper built on top of it.
package xport

import (
	"time"

	"github.com/gocrt/crt/crterr"
)

// Handle is an in-flight RPC's transport-level handle: the addressed,
// opcode-bound send/receive unit the rest of the core forwards, responds
// to or cancels.
type Handle struct {
	Addr string
	Opc  uint32

	input  []byte
	output []byte
}

func (h *Handle) SetInput(b []byte)  { h.input = b }
func (h *Handle) GetInput() []byte   { return h.input }
func (h *Handle) FreeInput()         { h.input = nil }
func (h *Handle) SetOutput(b []byte) { h.output = b }
func (h *Handle) GetOutput() []byte  { return h.output }
func (h *Handle) FreeOutput()        { h.output = nil }

// CompletionFunc is invoked by a context's Trigger when a forward/respond
// operation completes, carrying the handle and the operation's outcome.
type CompletionFunc func(h *Handle, err error)

// BulkOp selects a bulk transfer's direction.
type BulkOp int

const (
	BulkPush BulkOp = iota
	BulkPull
)

// Class is the transport-level provider (spec.md §4.A), analogous to a CaRT
// "cci+tcp" or "cci+verbs" NA class. One Class backs any number of Contexts.
type Class interface {
	// SelfAddress is this class's bindable address, ≤ AddrStrMaxLen.
	SelfAddress() string
	// ContextCreate creates a new progress context bound to this class.
	ContextCreate(idx int) (Context, error)
	// Close releases the class's listening resources.
	Close() error
}

// Context is a single progress context: the unit Progress/Trigger operate
// on (spec.md §4.E delegates to this for the actual network I/O).
type Context interface {
	Idx() int
	// CreateHandle binds a handle to addr for opc, ready for Forward.
	CreateHandle(addr string, opc uint32) (*Handle, error)
	// DestroyHandle releases a handle's transport-side resources.
	DestroyHandle(h *Handle)
	// Forward sends h's input to its peer and arranges for cb to run on a
	// later Trigger once the peer's reply (or a send failure) arrives.
	Forward(h *Handle, cb CompletionFunc) error
	// Respond sends h's output back to the handle's originator.
	Respond(h *Handle, cb CompletionFunc) error
	// Cancel best-effort cancels an in-flight handle.
	Cancel(h *Handle)
	// SetInboundHandler installs the server-side dispatch callback invoked
	// for every inbound request payload; it must return the reply payload.
	SetInboundHandler(f func([]byte) []byte) error
	// BulkTransfer moves length bytes between local and remote offsets.
	BulkTransfer(op BulkOp, remoteAddr string, remoteOff, localOff, length int, local []byte) (string, error)
	// Progress waits for network activity. The tcp and nats backends sleep
	// for the smaller of timeout and 5ms when timeout is positive, and
	// return at once for 0 or a negative timeout (no blocking wait).
	Progress(timeout time.Duration) error
	// Trigger runs up to maxCount ready completions and returns how many ran.
	Trigger(maxCount int) int
	// Close releases the context's resources.
	Close() error
}

// ClassInit parses a CaRT-style info string (`<provider>+<protocol>://host:port`)
// and constructs the matching backend; the text after "://" is the
// backend's address. A "bmi+tcp" provider is accepted as given and
// selects the tcp backend; the bare string "bmi+tcp" selects it with an
// empty bind address.
func ClassInit(info string, isServer bool) (Class, error) {
	proto, addr, err := parseInfoString(info)
	if err != nil {
		return nil, err
	}

	switch proto {
	case "tcp", "bmi+tcp", "cci+tcp":
		return newTCPClass(addr, isServer)
	case "nats", "cci+verbs":
		return newNATSClass(addr, isServer)
	default:
		return nil, crterr.New(crterr.INVAL)
	}
}

func parseInfoString(info string) (proto, addr string, err error) {
	if info == "" {
		return "", "", crterr.New(crterr.INVAL)
	}
	if info == "bmi+tcp" {
		return "bmi+tcp", "", nil
	}

	for i := 0; i+2 < len(info); i++ {
		if info[i] == ':' && info[i+1] == '/' && info[i+2] == '/' {
			return info[:i], info[i+3:], nil
		}
	}
	return "", "", crterr.New(crterr.INVAL)
}
