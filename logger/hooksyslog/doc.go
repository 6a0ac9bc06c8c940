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

/*
Package hooksyslog implements a logrus hook that writes log entries to syslog.

Connections reconnect transparently on write failure. Like hookwriter, the
hook has no background goroutine: Run is a no-op and IsRunning always
reports true, since there is no file rotation or buffering to manage.

	opts := config.OptionsSyslog{
	    Network: "udp",
	    Host:    "syslog.internal:514",
	    Facility: "local0",
	    Tag:      "myapp",
	}
	hook, err := hooksyslog.New(opts, &logrus.JSONFormatter{})
	if err != nil {
	    panic(err)
	}
	logger := logrus.New()
	logger.AddHook(hook)

Leaving Network and Host empty dials the local syslog daemon.
*/
package hooksyslog
