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

package hooksyslog_test

import (
	"strings"
	"time"

	logcfg "github.com/gocrt/crt/logger/config"
	loghsl "github.com/gocrt/crt/logger/hooksyslog"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
)

var _ = Describe("HookSyslog Integration", func() {
	BeforeEach(func() {
		clearReceivedMessages()
	})

	Context("with a live UDP endpoint", func() {
		It("dials and forwards a log entry", func() {
			opt := logcfg.OptionsSyslog{
				Network:  "udp",
				Host:     pktAddr,
				Facility: "local0",
				Tag:      "hooksyslog-test",
				LogLevel: []string{"Info"},
			}

			hook, err := loghsl.New(opt, &logrus.TextFormatter{DisableTimestamp: true})
			Expect(err).ToNot(HaveOccurred())
			Expect(hook).ToNot(BeNil())

			Expect(hook.IsRunning()).To(BeTrue())
			hook.Run(nil) // no-op, must not block or panic

			logger := logrus.New()
			logger.SetLevel(logrus.InfoLevel)
			logger.AddHook(hook)
			logger.WithField("msg", "hello from hooksyslog").Info("ignored")

			Eventually(getReceivedMessages, time.Second).ShouldNot(BeEmpty())

			msgs := getReceivedMessages()
			found := false
			for _, m := range msgs {
				if strings.Contains(m, "hello from hooksyslog") {
					found = true
					break
				}
			}
			Expect(found).To(BeTrue())

			Expect(hook.Close()).ToNot(HaveOccurred())
		})

		It("rejects writes after Close", func() {
			opt := logcfg.OptionsSyslog{
				Network: "udp",
				Host:    pktAddr,
				Tag:     "hooksyslog-test-closed",
			}

			hook, err := loghsl.New(opt, nil)
			Expect(err).ToNot(HaveOccurred())

			Expect(hook.Close()).ToNot(HaveOccurred())

			_, err = hook.Write([]byte("after close"))
			Expect(err).To(MatchError(loghsl.ErrClosed))
		})
	})
})
