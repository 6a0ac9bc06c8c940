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

package hooksyslog

import (
	"context"
	"errors"
	"strings"

	logtps "github.com/gocrt/crt/logger/types"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by a hook's Write once its connection has been closed.
var ErrClosed = errors.New("hooksyslog: write on closed connection")

type ohks struct {
	format           logrus.Formatter
	levels           []logrus.Level
	disableStack     bool
	disableTimestamp bool
	enableTrace      bool
	enableAccessLog  bool
}

// hks implements HookSyslog on top of a dialed syslog connection.
type hks struct {
	o ohks
	c *conn
}

func (o *hks) Levels() []logrus.Level {
	return o.o.levels
}

func (o *hks) RegisterHook(log *logrus.Logger) {
	log.AddHook(o)
}

// Run is a no-op: the hook writes synchronously and needs no background
// goroutine, mirroring hookwriter's stateless hooks.
func (o *hks) Run(ctx context.Context) {}

func (o *hks) IsRunning() bool {
	return true
}

func (o *hks) Write(p []byte) (int, error) {
	return o.c.Write(p)
}

func (o *hks) Close() error {
	return o.c.Close()
}

func (o *hks) Fire(entry *logrus.Entry) error {
	levelAccepted := false
	for _, l := range o.Levels() {
		if l == entry.Level {
			levelAccepted = true
			break
		}
	}
	if !levelAccepted {
		return nil
	}

	ent := entry.Dup()
	ent.Level = entry.Level

	if o.o.disableStack {
		ent.Data = filterKey(ent.Data, logtps.FieldStack)
	}

	if o.o.disableTimestamp {
		ent.Data = filterKey(ent.Data, logtps.FieldTime)
	}

	if !o.o.enableTrace {
		ent.Data = filterKey(ent.Data, logtps.FieldCaller)
		ent.Data = filterKey(ent.Data, logtps.FieldFile)
		ent.Data = filterKey(ent.Data, logtps.FieldLine)
	}

	var (
		p []byte
		e error
	)

	if o.o.enableAccessLog {
		if len(entry.Message) == 0 {
			return nil
		}
		msg := entry.Message
		if !strings.HasSuffix(msg, "\n") {
			msg += "\n"
		}
		p = []byte(msg)
	} else {
		if len(ent.Data) < 1 {
			return nil
		}
		if f := o.o.format; f != nil {
			p, e = f.Format(ent)
		} else {
			p, e = ent.Bytes()
		}
		if e != nil {
			return e
		}
	}

	_, e = o.Write(p)
	return e
}

func filterKey(f logrus.Fields, key string) logrus.Fields {
	if len(f) < 1 {
		return f
	}
	if _, ok := f[key]; !ok {
		return f
	}
	delete(f, key)
	return f
}
