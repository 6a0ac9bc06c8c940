/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
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

// Package hooksyslog provides a logrus hook implementation for writing log
// entries to a local or remote syslog daemon.
package hooksyslog

import (
	"log/syslog"
	"strings"
	"sync"
)

// facility maps a configuration string to the syslog facility portion of
// the connection priority. Unknown or empty values default to LOG_USER.
func facility(name string) syslog.Priority {
	switch strings.ToUpper(name) {
	case "KERN":
		return syslog.LOG_KERN
	case "USER", "":
		return syslog.LOG_USER
	case "MAIL":
		return syslog.LOG_MAIL
	case "DAEMON":
		return syslog.LOG_DAEMON
	case "AUTH":
		return syslog.LOG_AUTH
	case "SYSLOG":
		return syslog.LOG_SYSLOG
	case "LPR":
		return syslog.LOG_LPR
	case "NEWS":
		return syslog.LOG_NEWS
	case "UUCP":
		return syslog.LOG_UUCP
	case "CRON":
		return syslog.LOG_CRON
	case "AUTHPRIV":
		return syslog.LOG_AUTHPRIV
	case "FTP":
		return syslog.LOG_FTP
	case "LOCAL0":
		return syslog.LOG_LOCAL0
	case "LOCAL1":
		return syslog.LOG_LOCAL1
	case "LOCAL2":
		return syslog.LOG_LOCAL2
	case "LOCAL3":
		return syslog.LOG_LOCAL3
	case "LOCAL4":
		return syslog.LOG_LOCAL4
	case "LOCAL5":
		return syslog.LOG_LOCAL5
	case "LOCAL6":
		return syslog.LOG_LOCAL6
	case "LOCAL7":
		return syslog.LOG_LOCAL7
	default:
		return syslog.LOG_USER
	}
}

// conn is a mutex-protected syslog connection that transparently redials on
// write failure, mirroring the reconnect-on-error behaviour hookfile uses
// for its shared file handle, without the rotation-detection background
// goroutine a syslog connection has no equivalent of.
type conn struct {
	mu       sync.Mutex
	w        *syslog.Writer
	network  string
	host     string
	priority syslog.Priority
	tag      string
	closed   bool
}

func dial(network, host, tag string, priority syslog.Priority) (*conn, error) {
	w, e := syslog.Dial(network, host, priority, tag)
	if e != nil {
		return nil, e
	}

	return &conn{
		w:        w,
		network:  network,
		host:     host,
		priority: priority,
		tag:      tag,
	}, nil
}

func (c *conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}

	if n, e := c.w.Write(p); e == nil {
		return n, nil
	}

	w, e := syslog.Dial(c.network, c.host, c.priority, c.tag)
	if e != nil {
		return 0, e
	}

	_ = c.w.Close()
	c.w = w

	return c.w.Write(p)
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	return c.w.Close()
}
