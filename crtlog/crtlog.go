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

// Package crtlog is the runtime's logging facade (spec.md §6): it wraps
// the teacher's logrus-backed logger package with the structured fields
// every dispatch path carries (opc, rank, cookie, ctx_idx), driven by the
// CRT_LOG_FILE/CRT_LOG_MASK environment variables, and a bounded debug
// ring buffer for crash diagnostics (SPEC_FULL.md §9).
package crtlog

import (
	"context"
	"os"

	logcfg "github.com/gocrt/crt/logger/config"
	logfld "github.com/gocrt/crt/logger/fields"
	loglvl "github.com/gocrt/crt/logger/level"

	"github.com/gocrt/crt/logger"
)

// EnvLogFile is the path to a log file the runtime appends to, in
// addition to the console (Debug and Info on stdout, Warning and above on
// stderr). Empty disables file logging (spec.md §6).
const EnvLogFile = "CRT_LOG_FILE"

// EnvLogMask is the minimum level name (Debug/Info/Warning/Error/Fatal/
// Critical) the runtime logs at (spec.md §6). Defaults to Info.
const EnvLogMask = "CRT_LOG_MASK"

// Logger is the facade every core package logs through.
type Logger struct {
	l    logger.Logger
	ring *Ring
}

// New builds a Logger from CRT_LOG_FILE/CRT_LOG_MASK, with a
// ringCapacity-entry debug ring buffer (0 disables the ring).
func New(ctx context.Context, ringCapacity int) (*Logger, error) {
	lvl := loglvl.Parse(os.Getenv(EnvLogMask))

	opt := &logcfg.Options{Stdout: &logcfg.OptionsStd{}}
	if path := os.Getenv(EnvLogFile); path != "" {
		opt.LogFileExtend = true
		opt.LogFile = logcfg.OptionsFiles{{
			Filepath:   path,
			Create:     true,
			CreatePath: true,
		}}
	}

	l, err := logger.NewFrom(ctx, opt)
	if err != nil {
		return nil, err
	}
	l.SetLevel(lvl)

	return &Logger{l: l, ring: newRing(ringCapacity)}, nil
}

// With returns a child Logger carrying the given dispatch-path fields
// (opc, rank, cookie, ctx_idx) on every subsequent entry.
func (g *Logger) With(pairs map[string]interface{}) *Logger {
	child, err := g.l.Clone()
	if err != nil {
		child = g.l
	}

	f := child.GetFields()
	if f == nil {
		f = logfld.New(nil)
	} else {
		f = f.Clone()
	}
	for k, v := range pairs {
		f.Add(k, v)
	}
	child.SetFields(f)

	return &Logger{l: child, ring: g.ring}
}

// WithRPC is the common shape every RPC-lifecycle log line carries.
func (g *Logger) WithRPC(opc uint32, rank uint32, cookie uint64, ctxIdx int) *Logger {
	return g.With(map[string]interface{}{
		"opc":     opc,
		"rank":    rank,
		"cookie":  cookie,
		"ctx_idx": ctxIdx,
	})
}

func (g *Logger) Debug(message string, args ...interface{}) {
	g.record(message)
	g.l.Debug(message, nil, args...)
}

func (g *Logger) Info(message string, args ...interface{}) {
	g.record(message)
	g.l.Info(message, nil, args...)
}

func (g *Logger) Warning(message string, args ...interface{}) {
	g.record(message)
	g.l.Warning(message, nil, args...)
}

func (g *Logger) Error(message string, args ...interface{}) {
	g.record(message)
	g.l.Error(message, nil, args...)
}

func (g *Logger) record(message string) {
	if g.ring != nil {
		g.ring.push(message)
	}
}

// Ring returns the bounded debug ring buffer backing this logger, for a
// panic handler to dump on recovery (SPEC_FULL.md §9).
func (g *Logger) Ring() *Ring {
	return g.ring
}

// Close releases the underlying logger's resources (open file handles).
func (g *Logger) Close() error {
	return g.l.Close()
}
