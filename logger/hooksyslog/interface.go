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

// Package hooksyslog provides a logrus hook that forwards log entries to a
// local or remote syslog daemon over the network protocol and host configured
// in logcfg.OptionsSyslog. When Host is empty it dials the local syslog.
package hooksyslog

import (
	"log/syslog"

	logcfg "github.com/gocrt/crt/logger/config"
	loglvl "github.com/gocrt/crt/logger/level"
	logtps "github.com/gocrt/crt/logger/types"
	"github.com/sirupsen/logrus"
)

// HookSyslog defines the interface for a logrus hook that writes logs to syslog.
type HookSyslog interface {
	logtps.Hook
}

// New dials the configured syslog endpoint and returns a hook that writes
// formatted log entries to it.
//
// Network/Host select the transport: leaving both empty dials the local
// syslog daemon. Facility selects the syslog facility (defaults to USER).
// Tag is used as the syslog program tag.
func New(opt logcfg.OptionsSyslog, format logrus.Formatter) (HookSyslog, error) {
	var lvls = make([]logrus.Level, 0)

	if len(opt.LogLevel) > 0 {
		for _, ls := range opt.LogLevel {
			lvls = append(lvls, loglvl.Parse(ls).Logrus())
		}
	} else {
		lvls = logrus.AllLevels
	}

	c, e := dial(opt.Network, opt.Host, opt.Tag, facility(opt.Facility)|syslog.LOG_INFO)
	if e != nil {
		return nil, e
	}

	return &hks{
		o: ohks{
			format:           format,
			levels:           lvls,
			disableStack:     opt.DisableStack,
			disableTimestamp: opt.DisableTimestamp,
			enableTrace:      opt.EnableTrace,
			enableAccessLog:  opt.EnableAccessLog,
		},
		c: c,
	}, nil
}
