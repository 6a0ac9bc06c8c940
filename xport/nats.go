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
	"sync"
	"time"

	"github.com/gocrt/crt/crterr"
	"github.com/nats-io/nats.go"
)

// natsClass is the message-broker NA backend: every rank owns a request
// subject ("crt.<addr>") it subscribes to, and Forward is a NATS
// request/reply round-trip against the peer's subject.
type natsClass struct {
	conn *nats.Conn
	addr string
}

func newNATSClass(url string, isServer bool) (*natsClass, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, crterr.New(crterr.HG)
	}
	_ = isServer
	return &natsClass{conn: conn, addr: "crt." + conn.ConnectedUrl()}, nil
}

func (c *natsClass) SelfAddress() string { return c.addr }

func (c *natsClass) ContextCreate(idx int) (Context, error) {
	return &natsContext{idx: idx, conn: c.conn, subject: c.addr}, nil
}

func (c *natsClass) Close() error {
	c.conn.Close()
	return nil
}

type natsContext struct {
	idx     int
	conn    *nats.Conn
	subject string

	mu      sync.Mutex
	pending []completion
	sub     *nats.Subscription
}

func (t *natsContext) Idx() int { return t.idx }

func (t *natsContext) CreateHandle(addr string, opc uint32) (*Handle, error) {
	return &Handle{Addr: addr, Opc: opc}, nil
}

func (t *natsContext) DestroyHandle(h *Handle) {
	h.FreeInput()
	h.FreeOutput()
}

func (t *natsContext) SetInboundHandler(f func([]byte) []byte) error {
	sub, err := t.conn.Subscribe(t.subject, func(msg *nats.Msg) {
		resp := f(msg.Data)
		_ = msg.Respond(resp)
	})
	if err != nil {
		return crterr.New(crterr.HG)
	}
	t.mu.Lock()
	t.sub = sub
	t.mu.Unlock()
	return nil
}

func (t *natsContext) Forward(h *Handle, cb CompletionFunc) error {
	go func() {
		msg, err := t.conn.Request(h.Addr, h.GetInput(), 5*time.Second)
		var cerr error
		if err != nil {
			cerr = crterr.New(crterr.HG)
		} else {
			h.SetOutput(msg.Data)
		}
		t.enqueue(completion{h: h, err: cerr, cb: cb})
	}()
	return nil
}

func (t *natsContext) Respond(h *Handle, cb CompletionFunc) error {
	t.enqueue(completion{h: h, cb: cb})
	return nil
}

func (t *natsContext) Cancel(h *Handle) {
	t.enqueue(completion{h: h, err: crterr.New(crterr.CANCELED), cb: nil})
}

func (t *natsContext) BulkTransfer(op BulkOp, remoteAddr string, remoteOff, localOff, length int, local []byte) (string, error) {
	_, err := t.conn.Request(remoteAddr+".bulk", local, 5*time.Second)
	if err != nil {
		return "", crterr.New(crterr.HG)
	}
	return hashicorpOpID()
}

func (t *natsContext) Progress(timeout time.Duration) error {
	if timeout > 0 {
		time.Sleep(minDuration(timeout, 5*time.Millisecond))
	}
	return nil
}

func (t *natsContext) Trigger(maxCount int) int {
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

func (t *natsContext) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sub != nil {
		return t.sub.Unsubscribe()
	}
	return nil
}

func (t *natsContext) enqueue(c completion) {
	t.mu.Lock()
	t.pending = append(t.pending, c)
	t.mu.Unlock()
}
