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
	"os"
	"time"

	"github.com/gocrt/crt/crterr"
)

const (
	lookupInitialWait = time.Millisecond
	lookupMaxWait      = 512 * time.Millisecond
	lookupDefaultDeadline = 10 * time.Second
)

// Resolver starts an asynchronous name lookup and reports whether it has
// completed yet; on completion ok is true and addr holds the result.
type Resolver func() (addr string, ok bool)

// AddrLookupWait alternates ctx.Trigger/ctx.Progress with an exponentially
// doubling wait (1ms, capped at 512ms) until resolve reports completion or
// deadline (10s if <= 0) elapses, per spec.md §4.A's bounded lookup. On
// timeout it logs the local rank and hostname and returns TIMEDOUT.
func AddrLookupWait(ctx Context, resolve Resolver, localRank uint32, deadline time.Duration, logf func(format string, args ...any)) (string, error) {
	if deadline <= 0 {
		deadline = lookupDefaultDeadline
	}
	start := time.Now()
	wait := lookupInitialWait

	for {
		ctx.Trigger(16)
		if addr, ok := resolve(); ok {
			return addr, nil
		}
		if time.Since(start) >= deadline {
			if logf != nil {
				host, _ := os.Hostname()
				logf("addr_lookup_wait: timed out after %s (rank=%d host=%s)", deadline, localRank, host)
			}
			return "", crterr.New(crterr.TIMEDOUT)
		}

		_ = ctx.Progress(wait)
		time.Sleep(wait)

		wait *= 2
		if wait > lookupMaxWait {
			wait = lookupMaxWait
		}
	}
}
