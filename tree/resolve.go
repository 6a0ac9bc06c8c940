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

package tree

import (
	"sort"

	"github.com/bits-and-blooms/bitset"
)

// FilteredRankList is the dense, sorted, deduplicated rank list produced
// by GetFilteredGroupRankList, plus the logical positions of root and
// self within it (spec.md §4.G).
type FilteredRankList struct {
	Ranks    []uint32
	RootPos  int
	SelfPos  int
	RootRank uint32
	SelfRank uint32
}

// GetFilteredGroupRankList sorts and deduplicates groupRanks, removes any
// rank present in excluded, and locates root/self within the result.
// excluded may be nil (no exclusions). If root or self is not present in
// the filtered list (e.g. because it was excluded), ok is false and
// callers must treat the tree as absent — no children, no parent
// (spec.md §4.G).
func GetFilteredGroupRankList(groupRanks []uint32, excluded *bitset.BitSet, root, self uint32) (FilteredRankList, bool) {
	uniq := make(map[uint32]struct{}, len(groupRanks))
	for _, r := range groupRanks {
		if excluded != nil && excluded.Test(uint(r)) {
			continue
		}
		uniq[r] = struct{}{}
	}

	ranks := make([]uint32, 0, len(uniq))
	for r := range uniq {
		ranks = append(ranks, r)
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i] < ranks[j] })

	if len(ranks) == 0 {
		return FilteredRankList{}, false
	}

	rootPos, rootOK := indexOf(ranks, root)
	selfPos, selfOK := indexOf(ranks, self)
	if !rootOK || !selfOK {
		return FilteredRankList{}, false
	}

	return FilteredRankList{
		Ranks:    ranks,
		RootPos:  rootPos,
		SelfPos:  selfPos,
		RootRank: root,
		SelfRank: self,
	}, true
}

func indexOf(ranks []uint32, v uint32) (int, bool) {
	i := sort.Search(len(ranks), func(i int) bool { return ranks[i] >= v })
	if i < len(ranks) && ranks[i] == v {
		return i, true
	}
	return 0, false
}

// logical maps a physical position in frl.Ranks to a 0-based logical
// index relative to the root (logical 0 == root), matching the
// convention Topology's Children/Parent expect.
func (frl FilteredRankList) logical(pos int) int {
	size := len(frl.Ranks)
	return ((pos-frl.RootPos)%size + size) % size
}

// physical is the inverse of logical: given a logical index, returns the
// position in frl.Ranks.
func (frl FilteredRankList) physical(logical int) int {
	size := len(frl.Ranks)
	return ((frl.RootPos+logical)%size + size) % size
}

// Children returns self's direct children as actual ranks, per topo,
// within the filtered group (spec.md §4.G).
func (frl FilteredRankList) Children(topo Topology) []uint32 {
	size := len(frl.Ranks)
	selfLogical := frl.logical(frl.SelfPos)

	logicalChildren := topo.Children(size, selfLogical)
	if len(logicalChildren) == 0 {
		return nil
	}

	out := make([]uint32, 0, len(logicalChildren))
	for _, c := range logicalChildren {
		out = append(out, frl.Ranks[frl.physical(c)])
	}
	return out
}

// Parent returns self's parent rank and true, or (0, false) if self is
// the root within the filtered group (spec.md §4.G).
func (frl FilteredRankList) Parent(topo Topology) (uint32, bool) {
	size := len(frl.Ranks)
	selfLogical := frl.logical(frl.SelfPos)

	p, ok := topo.Parent(size, selfLogical)
	if !ok {
		return 0, false
	}
	return frl.Ranks[frl.physical(p)], true
}
