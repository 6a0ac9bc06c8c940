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

// Package corpc is Collective RPC (spec.md §4.F): tree-based fan-out of a
// request to a group, with the opcode's aggregator callback folding each
// child's reply into the node's own output before replying upward (or, at
// the root, invoking the original completion callback).
package corpc

import (
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/gocrt/crt/crterr"
	"github.com/gocrt/crt/opcode"
	"github.com/gocrt/crt/tree"
)

// Info is the per-collective-root bookkeeping (spec.md §3's "CoRPC Info").
type Info struct {
	GroupRanks    []uint32
	ExcludedRanks *bitset.BitSet
	Topology      tree.Topology
	RootRank      uint32
	SelfRank      uint32

	mu          sync.Mutex
	childNum    int
	childAckNum int
	rc          error
	replyBuf    map[string]any
	failed      bool
}

// Dispatcher sends one forwarded child RPC and reports its reply (or
// error) asynchronously via cb. The caller of NewNode supplies it;
// package rpc does not provide an implementation.
type Dispatcher func(childRank uint32, input map[string]any, cb func(output map[string]any, err error))

// Node runs one interior (or root) node's share of a collective RPC
// (spec.md §4.F): invoke the local handler if present, compute children,
// fan out, and aggregate replies as they arrive.
type Node struct {
	info *Info
	ops  *opcode.CollectiveOps
	send Dispatcher

	mu       sync.Mutex
	children []uint32
	done     bool
}

// NewNode resolves self's children within info's filtered group/topology
// and prepares to aggregate their replies via ops.Aggregate.
func NewNode(info *Info, ops *opcode.CollectiveOps, send Dispatcher) (*Node, error) {
	frl, ok := tree.GetFilteredGroupRankList(info.GroupRanks, info.ExcludedRanks, info.RootRank, info.SelfRank)
	if !ok {
		return nil, crterr.New(crterr.NONEXIST)
	}

	return &Node{
		info:     info,
		ops:      ops,
		send:     send,
		children: frl.Children(info.Topology),
	}, nil
}

// Run executes this node's share of the collective call over input,
// invoking onComplete exactly once with the aggregated (or pass-through,
// if leaf) output. onComplete plays the role of reply_send for an
// interior node and the original user completion callback for the root
// (spec.md §4.F): the caller decides which by what it does with the
// result.
func (n *Node) Run(input map[string]any, localHandler opcode.HandlerFunc, onComplete func(out map[string]any, err error)) {
	var (
		out map[string]any
		err error
	)
	if localHandler != nil {
		out, err = localHandler(opcode.Request{Body: input})
	} else {
		out = map[string]any{}
	}

	n.info.mu.Lock()
	n.info.replyBuf = out
	n.info.rc = err
	n.info.childNum = len(n.children)
	n.info.mu.Unlock()

	if err != nil || len(n.children) == 0 {
		onComplete(out, err)
		return
	}

	for _, child := range n.children {
		child := child
		n.send(child, input, func(childOut map[string]any, childErr error) {
			n.onChildReply(child, childOut, childErr, onComplete)
		})
	}
}

func (n *Node) onChildReply(_ uint32, childOut map[string]any, childErr error, onComplete func(out map[string]any, err error)) {
	n.info.mu.Lock()

	fail := false
	if n.info.failed {
		// Aggregation was short-circuited by an earlier child: this reply
		// is discarded.
	} else if childErr != nil {
		if n.ops != nil && n.ops.Aggregate != nil {
			fail = n.ops.Aggregate(n.info.replyBuf, map[string]any{"error": childErr.Error()})
		} else {
			fail = true
		}
		if n.info.rc == nil {
			n.info.rc = childErr
		}
	} else if n.ops != nil && n.ops.Aggregate != nil {
		fail = n.ops.Aggregate(n.info.replyBuf, childOut)
		if fail && n.info.rc == nil {
			n.info.rc = crterr.New(crterr.MISC)
		}
	}
	if fail {
		n.info.failed = true
	}

	n.info.childAckNum++
	last := n.info.childAckNum == n.info.childNum
	out := n.info.replyBuf
	rc := n.info.rc
	n.info.mu.Unlock()

	if last {
		n.mu.Lock()
		already := n.done
		n.done = true
		n.mu.Unlock()
		if !already {
			onComplete(out, rc)
		}
	}
}
