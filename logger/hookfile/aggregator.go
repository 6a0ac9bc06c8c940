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

// Package hookfile provides file-based logging hooks for logrus.
// This file handles log file aggregation and rotation functionality.
// It manages multiple writers to the same log file efficiently.
package hookfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	libatm "github.com/gocrt/crt/atomic"
)

// ErrClosedResources is returned by fileWriter.Write once the underlying
// file handle has been closed, signalling callers to re-acquire a writer.
var ErrClosedResources = errors.New("hookfile: write on closed resources")

// fileWriter is a mutex-protected, reference-counted writer to a single
// log file. It replaces an external async aggregator with a direct
// synchronous write path plus a background goroutine that periodically
// flushes to disk and detects external log rotation by inode comparison.
type fileWriter struct {
	mu     sync.Mutex
	path   string
	mode   os.FileMode
	flags  int
	root   *os.Root
	file   *os.File
	closed bool
	done   chan struct{}
}

func newFileWriter(p string, m os.FileMode, cre bool) (*fileWriter, error) {
	fl := os.O_WRONLY | os.O_APPEND
	if cre {
		fl = fl | os.O_CREATE
	}

	r, e := os.OpenRoot(filepath.Dir(p))
	if e != nil {
		return nil, e
	}

	f, e := r.OpenFile(filepath.Base(p), fl, m)
	if e != nil {
		_ = r.Close()
		return nil, e
	}

	if _, e = f.Seek(0, io.SeekEnd); e != nil {
		_ = f.Close()
		_ = r.Close()
		return nil, e
	}

	w := &fileWriter{
		path:  p,
		mode:  m,
		flags: fl,
		root:  r,
		file:  f,
		done:  make(chan struct{}),
	}

	go w.syncLoop()

	return w, nil
}

// Write implements io.Writer, writing directly to the shared file handle.
func (w *fileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrClosedResources
	}

	return w.file.Write(p)
}

// Close stops the sync goroutine and releases the file handle.
func (w *fileWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)

	w.mu.Lock()
	defer w.mu.Unlock()

	e1 := w.file.Close()
	e2 := w.root.Close()

	if e1 != nil {
		return e1
	}
	return e2
}

// syncLoop flushes the file to disk every second and reopens it if the
// path has been rotated out from under the open file descriptor (e.g. by
// logrotate renaming the file).
func (w *fileWriter) syncLoop() {
	t := time.NewTicker(time.Second)
	defer t.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-t.C:
			w.tick()
		}
	}
}

func (w *fileWriter) tick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}

	syncErr := w.file.Sync()

	needReopen := syncErr != nil
	if !needReopen {
		cur, err1 := w.file.Stat()
		disk, err2 := os.Stat(w.path)
		if err2 != nil || (err1 == nil && !os.SameFile(cur, disk)) {
			needReopen = true
		}
	}

	if !needReopen {
		return
	}

	_ = w.file.Close()

	if f, e := w.root.OpenFile(filepath.Base(w.path), w.flags, w.mode); e != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error reopening file %s: %v\n", w.path, e)
	} else {
		_, _ = f.Seek(0, io.SeekEnd)
		w.file = f
	}
}

// fileAgg represents an aggregated file writer with reference counting.
// It manages a single log file that can be shared by multiple loggers.
type fileAgg struct {
	i *atomic.Int64
	w *fileWriter
}

// Global map to manage file aggregators by file path.
// Uses atomic operations for thread-safe access.
var (
	agg = libatm.NewMapTyped[string, *fileAgg]()
)

// init sets up a finalizer to clean up resources when the program exits.
func init() {
	runtime.SetFinalizer(agg, func(a libatm.MapTyped[string, *fileAgg]) {
		a.Range(func(k string, v *fileAgg) bool {
			if v != nil {
				_ = v.w.Close()
			}
			return true
		})
	})
}

// setAgg retrieves or creates a file writer for the given file path.
// If one already exists for the path, its reference count is incremented.
func setAgg(k string, m os.FileMode, cre bool) (io.Writer, error) {
	i, l := agg.Load(k)

	if l && i != nil {
		i.i.Add(1)
		agg.Store(k, i)
		return i.w, nil
	}

	w, e := newFileWriter(k, m, cre)
	if e != nil {
		return nil, e
	}

	i = &fileAgg{i: new(atomic.Int64), w: w}
	i.i.Store(1)

	agg.Store(k, i)
	return i.w, nil
}

// delAgg decreases the reference count for the file writer at the given path.
// If the reference count reaches zero, the file is closed and removed.
func delAgg(k string) {
	i, _ := agg.Load(k)
	if i == nil {
		return
	}

	if i.i.Add(-1) > 0 {
		agg.Store(k, i)
	} else {
		agg.Delete(k)
		_ = i.w.Close()
	}
}

// ResetOpenFiles closes all open file writers and clears the registry.
// This function is primarily used for testing and cleanup purposes.
func ResetOpenFiles() {
	agg.Range(func(k string, v *fileAgg) bool {
		_ = v.w.Close()
		agg.Delete(k)
		return true
	})
}
