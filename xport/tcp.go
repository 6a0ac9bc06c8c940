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

package xport

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gocrt/crt/crterr"
)

// tcpClass is the raw-socket NA backend: every Forward dials a fresh
// connection, writes one length-prefixed frame, and reads one back —
// a request/reply shape that needs no connection pooling or
// response-correlation bookkeeping at this layer (spec.md §4.A leaves
// that to the RPC cookie).
type tcpClass struct {
	addr     string
	listener net.Listener
}

func newTCPClass(addr string, isServer bool) (*tcpClass, error) {
	c := &tcpClass{addr: addr}
	if isServer {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, crterr.New(crterr.HG)
		}
		c.listener = l
		c.addr = l.Addr().String()
	}
	return c, nil
}

func (c *tcpClass) SelfAddress() string { return "tcp://" + c.addr }

func (c *tcpClass) ContextCreate(idx int) (Context, error) {
	ctx := &tcpContext{idx: idx, class: c}
	if c.listener != nil {
		go ctx.acceptLoop(c.listener)
	}
	return ctx, nil
}

func (c *tcpClass) Close() error {
	if c.listener != nil {
		return c.listener.Close()
	}
	return nil
}

type completion struct {
	h   *Handle
	err error
	cb  CompletionFunc
}

type tcpContext struct {
	idx   int
	class *tcpClass

	mu      sync.Mutex
	pending []completion
	inbound func([]byte) []byte
}

func (t *tcpContext) Idx() int { return t.idx }

func (t *tcpContext) CreateHandle(addr string, opc uint32) (*Handle, error) {
	return &Handle{Addr: addr, Opc: opc}, nil
}

func (t *tcpContext) DestroyHandle(h *Handle) {
	h.FreeInput()
	h.FreeOutput()
}

// SetInboundHandler installs the callback invoked synchronously (on the
// accepting connection's goroutine) for every request frame received:
// it must return the response payload to write back.
func (t *tcpContext) SetInboundHandler(f func([]byte) []byte) error {
	t.mu.Lock()
	t.inbound = f
	t.mu.Unlock()
	return nil
}

func (t *tcpContext) Forward(h *Handle, cb CompletionFunc) error {
	go func() {
		out, err := t.roundTrip(h.Addr, h.GetInput())
		if err == nil {
			h.SetOutput(out)
		}
		t.enqueue(completion{h: h, err: err, cb: cb})
	}()
	return nil
}

func (t *tcpContext) Respond(h *Handle, cb CompletionFunc) error {
	t.enqueue(completion{h: h, cb: cb})
	return nil
}

func (t *tcpContext) Cancel(h *Handle) {
	t.enqueue(completion{h: h, err: crterr.New(crterr.CANCELED), cb: nil})
}

func (t *tcpContext) BulkTransfer(op BulkOp, remoteAddr string, remoteOff, localOff, length int, local []byte) (string, error) {
	conn, err := net.DialTimeout("tcp", trimScheme(remoteAddr), 5*time.Second)
	if err != nil {
		return "", crterr.New(crterr.HG)
	}
	defer conn.Close()

	hdr := make([]byte, 12)
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(op))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(remoteOff))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(length))
	if err := writeFrame(conn, append(hdr, local...)); err != nil {
		return "", crterr.New(crterr.HG)
	}

	opid, err := hashicorpOpID()
	return opid, err
}

func (t *tcpContext) Progress(timeout time.Duration) error {
	if timeout > 0 {
		time.Sleep(minDuration(timeout, 5*time.Millisecond))
	}
	return nil
}

func (t *tcpContext) Trigger(maxCount int) int {
	t.mu.Lock()
	n := len(t.pending)
	if n > maxCount {
		n = maxCount
	}
	batch := append([]completion(nil), t.pending[:n]...)
	t.pending = t.pending[n:]
	t.mu.Unlock()

	for _, c := range batch {
		if c.cb != nil {
			c.cb(c.h, c.err)
		}
	}
	return len(batch)
}

func (t *tcpContext) Close() error { return nil }

func (t *tcpContext) enqueue(c completion) {
	t.mu.Lock()
	t.pending = append(t.pending, c)
	t.mu.Unlock()
}

func (t *tcpContext) acceptLoop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		go t.serveConn(conn)
	}
}

func (t *tcpContext) serveConn(conn net.Conn) {
	defer conn.Close()

	req, err := readFrame(conn)
	if err != nil {
		return
	}

	t.mu.Lock()
	handler := t.inbound
	t.mu.Unlock()
	if handler == nil {
		return
	}

	resp := handler(req)
	_ = writeFrame(conn, resp)
}

func (t *tcpContext) roundTrip(addr string, payload []byte) ([]byte, error) {
	conn, err := net.DialTimeout("tcp", trimScheme(addr), 5*time.Second)
	if err != nil {
		return nil, crterr.New(crterr.HG)
	}
	defer conn.Close()

	if err := writeFrame(conn, payload); err != nil {
		return nil, crterr.New(crterr.HG)
	}
	out, err := readFrame(conn)
	if err != nil {
		return nil, crterr.New(crterr.HG)
	}
	return out, nil
}

func writeFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func trimScheme(addr string) string {
	for i := 0; i+2 < len(addr); i++ {
		if addr[i] == ':' && addr[i+1] == '/' && addr[i+2] == '/' {
			return addr[i+3:]
		}
	}
	return addr
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
