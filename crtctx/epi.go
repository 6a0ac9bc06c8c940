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

package crtctx

import (
	"golang.org/x/sync/semaphore"
)

// epi is the per-(context, remote-rank) Endpoint Inflight record
// (spec.md §3): a semaphore bounds concurrent inflight RPCs, a FIFO
// wait queue holds the overflow.
type epi struct {
	sem   *semaphore.Weighted
	waitQ []Trackable
}

func newEPI(maxInflight int) *epi {
	return &epi{sem: semaphore.NewWeighted(int64(maxInflight))}
}

// admit reports whether t may proceed immediately (IN_INFLIGHT) or must
// queue (IN_WAIT).
func (e *epi) admit(t Trackable) bool {
	if e.sem.TryAcquire(1) {
		return true
	}
	e.waitQ = append(e.waitQ, t)
	return false
}

// release frees one inflight slot and, if the wait queue is non-empty,
// promotes its head — returning it for the caller to forward.
func (e *epi) release() Trackable {
	if len(e.waitQ) > 0 {
		next := e.waitQ[0]
		e.waitQ = e.waitQ[1:]
		return next
	}
	e.sem.Release(1)
	return nil
}

// dequeueIfWaiting removes t from the wait queue (used when an RPC is
// untracked before ever being promoted).
func (e *epi) dequeueIfWaiting(t Trackable) bool {
	for i, w := range e.waitQ {
		if w == t {
			e.waitQ = append(e.waitQ[:i], e.waitQ[i+1:]...)
			return true
		}
	}
	return false
}
