/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
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

// Package crterr registers the runtime's return-code taxonomy as liberr.CodeError
// values in the MinPkgCrt range and exposes them as package-level constants.
package crterr

import (
	liberr "github.com/gocrt/crt/errors"
)

const (
	INVAL liberr.CodeError = liberr.MinPkgCrt + iota
	UNINIT
	ALREADY
	NO_PERM
	NOMEM
	NOSPACE
	EXIST
	NONEXIST
	UNREG
	HG
	PROTO
	TRUNC
	TIMEDOUT
	CANCELED
	MISC
)

func init() {
	liberr.RegisterIdFctMessage(liberr.MinPkgCrt, getMessage)
}

func getMessage(code liberr.CodeError) string {
	switch code {
	case INVAL:
		return "invalid argument or out-of-range rank"
	case UNINIT:
		return "api called before initialization"
	case ALREADY:
		return "already initialized"
	case NO_PERM:
		return "finalize called while uninitialized"
	case NOMEM:
		return "allocation failure"
	case NOSPACE:
		return "queue full or quota exceeded"
	case EXIST:
		return "duplicate opcode registration"
	case NONEXIST:
		return "lookup miss"
	case UNREG:
		return "opcode not registered"
	case HG:
		return "transport layer failure"
	case PROTO:
		return "wire header or magic mismatch"
	case TRUNC:
		return "scatter-gather list too small"
	case TIMEDOUT:
		return "timeout expired"
	case CANCELED:
		return "aborted by user or timeout"
	case MISC:
		return "miscellaneous failure"
	default:
		return liberr.UnknownMessage
	}
}

// Retryable reports whether the caller may retry an operation that failed
// with the given code. TIMEDOUT, CANCELED and HG are retry-eligible at the
// caller's discretion; the runtime itself never retries internally.
func Retryable(code liberr.CodeError) bool {
	switch code {
	case TIMEDOUT, CANCELED, HG:
		return true
	default:
		return false
	}
}

// New builds a liberr.Error for the given taxonomy code, optionally wrapping parents.
func New(code liberr.CodeError, parent ...error) liberr.Error {
	return code.Error(parent...)
}

// Newf builds a liberr.Error for the given taxonomy code with a formatted message.
func Newf(code liberr.CodeError, pattern string, args ...interface{}) liberr.Error {
	return liberr.Newf(code.Uint16(), pattern, args...)
}
