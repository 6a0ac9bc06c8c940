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

// Package crtctx is Context & Progress (spec.md §4.E): per-context EPI
// tracking, a timeout min-heap, and the progress/trigger drive loop that
// the RPC lifecycle (package rpc) and collective RPC (package corpc)
// build on.
package crtctx

import (
	"container/heap"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gocrt/crt/crterr"
	"github.com/gocrt/crt/xport"
)

const defaultMaxInflight = 32

// TrackResult reports whether context_req_track admitted the RPC
// immediately or queued it (spec.md §4.E).
type TrackResult int

const (
	InInflight TrackResult = iota
	InWait
)

// Trackable is the subset of an RPC's behavior Context needs to track
// timeouts and EPI admission without importing package rpc (which
// itself depends on crtctx to send).
type Trackable interface {
	// Rank is the destination endpoint's rank, used for EPI keying.
	Rank() uint32
	// Promote is called when a queued RPC is admitted into the inflight
	// set; it must perform the actual transport forward.
	Promote() error
	// Timeout is called when the RPC's deadline elapses before
	// completion; it must mark the RPC TIMEOUT, invoke the user
	// callback, and best-effort cancel the transport handle.
	Timeout()
}

var (
	metricTracked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crt_context_tracked_total",
		Help: "RPCs admitted to context_req_track.",
	})
	metricTimedOut = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crt_context_timeouts_total",
		Help: "RPCs that hit their deadline before completion.",
	})
	metricInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "crt_context_inflight",
		Help: "Current inflight RPC count per context.",
	}, []string{"ctx"})
)

func init() {
	prometheus.MustRegister(metricTracked, metricTimedOut, metricInflight)
}

// Context is one progress context (spec.md §3): a transport context plus
// its EPI table and timeout heap. A context must only ever be progressed
// from a single goroutine at a time (spec.md §4.E).
type Context struct {
	idx         int
	xctx        xport.Context
	maxInflight int

	mu       sync.Mutex
	epis     map[uint32]*epi
	timeouts timeoutHeap
}

// Create builds a Context bound to xctx (spec.md §4.E's context_create).
func Create(idx int, xctx xport.Context, maxInflight int) *Context {
	if maxInflight <= 0 {
		maxInflight = defaultMaxInflight
	}
	c := &Context{
		idx:         idx,
		xctx:        xctx,
		maxInflight: maxInflight,
		epis:        make(map[uint32]*epi),
	}
	heap.Init(&c.timeouts)
	return c
}

func (c *Context) Idx() int               { return c.idx }
func (c *Context) Transport() xport.Context { return c.xctx }

func (c *Context) epiFor(rank uint32) *epi {
	e, ok := c.epis[rank]
	if !ok {
		e = newEPI(c.maxInflight)
		c.epis[rank] = e
	}
	return e
}

// TrackHandle is the opaque token Track returns; callers must pass it
// back to Untrack to locate the timeout-heap entry it created.
type TrackHandle struct {
	entry *timeoutEntry
}

// Track runs context_req_track (spec.md §4.E): locates/creates the EPI,
// schedules the timeout, and admits or queues t.
func (c *Context) Track(t Trackable, timeoutUS int64) (TrackResult, *TrackHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &timeoutEntry{deadline: nowMicro() + timeoutUS, rpc: t}
	heap.Push(&c.timeouts, entry)

	e := c.epiFor(t.Rank())
	metricTracked.Inc()
	metricInflight.WithLabelValues(idxLabel(c.idx)).Inc()

	h := &TrackHandle{entry: entry}
	if e.admit(t) {
		return InInflight, h
	}
	return InWait, h
}

// Untrack runs context_req_untrack (spec.md §4.E): removes t from its
// queue and the timeout heap, then promotes the next waiter if a slot
// freed up.
func (c *Context) Untrack(t Trackable, h *TrackHandle) {
	c.mu.Lock()
	e, ok := c.epis[t.Rank()]
	wasWaiting := false
	if ok {
		wasWaiting = e.dequeueIfWaiting(t)
	}
	if h != nil {
		c.timeouts.remove(h.entry)
	}
	metricInflight.WithLabelValues(idxLabel(c.idx)).Dec()

	var promoted Trackable
	if ok && !wasWaiting {
		promoted = e.release()
	}
	c.mu.Unlock()

	if promoted != nil {
		if err := promoted.Promote(); err != nil {
			promoted.Timeout()
		}
	}
}

// translateTimeout implements spec.md §4.E's signed-microsecond to
// unsigned transport-duration rule.
func translateTimeout(timeoutUS int64) time.Duration {
	switch {
	case timeoutUS < 0:
		return -1
	case timeoutUS == 0:
		return 0
	case timeoutUS < 1000:
		return time.Millisecond
	default:
		return time.Duration(timeoutUS) * time.Microsecond
	}
}

// Progress runs one iteration of the progress loop (spec.md §4.E):
// drains ready completions via Trigger, calls transport Progress once,
// then sweeps expired timeouts.
func (c *Context) Progress(timeoutUS int64) error {
	if c.xctx == nil {
		return crterr.New(crterr.UNINIT)
	}

	for c.xctx.Trigger(64) > 0 {
	}

	d := translateTimeout(timeoutUS)
	if err := c.xctx.Progress(d); err != nil {
		return err
	}

	c.sweepTimeouts()
	return nil
}

func (c *Context) sweepTimeouts() {
	now := nowMicro()
	var expired []Trackable

	c.mu.Lock()
	for c.timeouts.Len() > 0 && c.timeouts[0].deadline <= now {
		e := heap.Pop(&c.timeouts).(*timeoutEntry)
		expired = append(expired, e.rpc)
	}
	c.mu.Unlock()

	for _, t := range expired {
		metricTimedOut.Inc()
		t.Timeout()
	}
}

func nowMicro() int64 { return time.Now().UnixMicro() }

func idxLabel(idx int) string { return strconv.Itoa(idx) }
