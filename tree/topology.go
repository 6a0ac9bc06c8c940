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

// Package tree computes parent/children relationships for the three
// broadcast topologies a collective RPC can use (spec.md §4.G): flat,
// k-ary and k-nomial. All three share the vtable shape
// {ChildrenCount, Children, Parent} and operate on a 0-based logical
// index where 0 always denotes the tree's root.
package tree

import (
	"github.com/gocrt/crt/crterr"
)

// Kind selects a topology implementation.
type Kind int

const (
	Flat Kind = iota
	KAry
	KNomial
)

// Ratio bounds (spec.md §4.G); Flat ignores Ratio entirely.
const (
	MinRatio = 2
	MaxRatio = 64
)

// Topology is the (kind, ratio) pair encoded together as `tree_topo` in
// spec.md's CoRPC Info.
type Topology struct {
	Kind  Kind
	Ratio uint
}

// NewTopology validates ratio against [MinRatio, MaxRatio] for non-flat
// kinds and returns the Topology, or INVAL if out of range.
func NewTopology(kind Kind, ratio uint) (Topology, error) {
	if kind != Flat && (ratio < MinRatio || ratio > MaxRatio) {
		return Topology{}, crterr.New(crterr.INVAL)
	}
	return Topology{Kind: kind, Ratio: ratio}, nil
}

// ChildrenCount returns len(Children(size, idx)) without building the slice.
func (t Topology) ChildrenCount(size, idx int) int {
	return len(t.Children(size, idx))
}

// Children returns the logical indices of idx's direct children in a
// group of size logicalIdx==0..size-1, root fixed at logical index 0.
func (t Topology) Children(size, idx int) []int {
	if size <= 1 || idx < 0 || idx >= size {
		return nil
	}

	switch t.Kind {
	case Flat:
		return flatChildren(size, idx)
	case KAry:
		return karyChildren(size, idx, t.Ratio)
	case KNomial:
		return knomialChildren(size, idx, t.Ratio)
	default:
		return nil
	}
}

// Parent returns idx's logical parent index and true, or (0, false) if
// idx is the root (logical index 0) and thus has no parent.
func (t Topology) Parent(size, idx int) (int, bool) {
	if size <= 1 || idx <= 0 || idx >= size {
		return 0, false
	}

	switch t.Kind {
	case Flat:
		return 0, true
	case KAry:
		return karyParent(idx, t.Ratio)
	case KNomial:
		return knomialParent(size, idx, t.Ratio)
	default:
		return 0, false
	}
}

func flatChildren(size, idx int) []int {
	if idx != 0 {
		return nil
	}
	out := make([]int, 0, size-1)
	for i := 1; i < size; i++ {
		out = append(out, i)
	}
	return out
}

func karyChildren(size, idx int, k uint) []int {
	var out []int
	first := int(k)*idx + 1
	last := int(k)*idx + int(k)
	for c := first; c <= last && c < size; c++ {
		out = append(out, c)
	}
	return out
}

func karyParent(idx int, k uint) (int, bool) {
	return (idx - 1) / int(k), true
}

// knomialChildren and knomialParent implement the recursive-doubling
// (generalized to base k) broadcast tree: starting from the largest
// power of k strictly below size, each level d gives every node i that
// is a multiple of d·k the children i+j·d for j in [1, k); a node that is
// a multiple of d but not of d·k has i rounded down to a multiple of d·k
// as its parent.
func knomialChildren(size, idx int, k uint) []int {
	var out []int
	for d := largestPowerBelow(size, k); d >= 1; d /= int(k) {
		if idx%(d*int(k)) == 0 {
			for j := 1; j < int(k); j++ {
				if c := idx + j*d; c < size {
					out = append(out, c)
				}
			}
		}
	}
	return out
}

func knomialParent(size, idx int, k uint) (int, bool) {
	for d := largestPowerBelow(size, k); d >= 1; d /= int(k) {
		if idx%d == 0 && idx%(d*int(k)) != 0 {
			return idx - idx%(d*int(k)), true
		}
	}
	return 0, false
}

// largestPowerBelow returns the largest power of k strictly less than
// size (k^0=1 if size<=1).
func largestPowerBelow(size int, k uint) int {
	p := 1
	for p*int(k) < size {
		p *= int(k)
	}
	return p
}
