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

// Package group defines the external group-membership contract the core
// consumes (spec.md §6) and a Static in-memory implementation suitable
// for tests and single-process collective fan-out. A production group
// manager (secondary-group creation, URI-lookup-backed resolution) is
// explicitly out of scope for the core (spec.md §1).
package group

import (
	"context"
	"sort"
	"time"

	"github.com/gocrt/crt/cache"
	"github.com/gocrt/crt/crterr"
)

// Group is one membership set: a primary or secondary group of ranks.
type Group interface {
	// ID is the group identifier carried in the common header's grp_id.
	ID() string
	// Size is the number of live members.
	Size() int
	// Members returns the sorted, deduplicated rank list.
	Members() []uint32
	// Primary reports whether this is the process's primary group.
	Primary() bool
	// Service reports whether this is a service (server) group.
	Service() bool
	// LookupAddr resolves rank's transport address for context ctxIdx and
	// tag, consulting (and populating) the per-context address cache
	// (spec.md §6's lc_lookup).
	LookupAddr(ctx context.Context, ctxIdx int, rank uint32, tag uint32) (string, bool)
	// CacheAddr populates the per-context address cache for rank, e.g.
	// after a successful URI_LOOKUP round-trip.
	CacheAddr(ctxIdx int, rank uint32, tag uint32, addr string)
}

// Service resolves process-local rank and external group lookups
// (spec.md §6's group_rank/group_lookup).
type Service interface {
	// Rank returns the caller's rank within grp.
	Rank(grp Group) (uint32, error)
	// Lookup resolves a group by id.
	Lookup(id string) (Group, error)
}

type lcKey struct {
	ctxIdx int
	rank   uint32
	tag    uint32
}

// Static is an in-memory Group/Service pair: a fixed rank list known at
// construction time, with a TTL cache standing in for lc_lookup.
type Static struct {
	id      string
	members []uint32
	primary bool
	service bool
	selfIdx int

	addrs cache.Cache[lcKey, string]
}

// NewStatic builds a Static group over members (deduplicated and
// sorted), recording selfRank's position for Rank(). addrTTL bounds how
// long a cached address is trusted before a fresh URI_LOOKUP is required
// (0 disables expiry).
func NewStatic(ctx context.Context, id string, members []uint32, selfRank uint32, primary, service bool, addrTTL time.Duration) *Static {
	uniq := make(map[uint32]struct{}, len(members))
	for _, m := range members {
		uniq[m] = struct{}{}
	}
	ranks := make([]uint32, 0, len(uniq))
	for r := range uniq {
		ranks = append(ranks, r)
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i] < ranks[j] })

	selfIdx := -1
	for i, r := range ranks {
		if r == selfRank {
			selfIdx = i
			break
		}
	}

	return &Static{
		id:      id,
		members: ranks,
		primary: primary,
		service: service,
		selfIdx: selfIdx,
		addrs:   cache.New[lcKey, string](ctx, addrTTL),
	}
}

func (s *Static) ID() string        { return s.id }
func (s *Static) Size() int         { return len(s.members) }
func (s *Static) Members() []uint32 { return append([]uint32(nil), s.members...) }
func (s *Static) Primary() bool     { return s.primary }
func (s *Static) Service() bool     { return s.service }

func (s *Static) LookupAddr(_ context.Context, ctxIdx int, rank uint32, tag uint32) (string, bool) {
	addr, _, ok := s.addrs.Load(lcKey{ctxIdx: ctxIdx, rank: rank, tag: tag})
	return addr, ok
}

func (s *Static) CacheAddr(ctxIdx int, rank uint32, tag uint32, addr string) {
	s.addrs.Store(lcKey{ctxIdx: ctxIdx, rank: rank, tag: tag}, addr)
}

// Close releases the per-context address cache's background goroutine.
func (s *Static) Close() error {
	return s.addrs.Close()
}

// StaticService resolves a fixed set of groups registered by ID.
type StaticService struct {
	groups map[string]Group
}

// NewStaticService builds a Service over the given groups, keyed by ID.
func NewStaticService(groups ...Group) *StaticService {
	m := make(map[string]Group, len(groups))
	for _, g := range groups {
		m[g.ID()] = g
	}
	return &StaticService{groups: m}
}

func (s *StaticService) Lookup(id string) (Group, error) {
	g, ok := s.groups[id]
	if !ok {
		return nil, crterr.New(crterr.NONEXIST)
	}
	return g, nil
}

func (s *StaticService) Rank(grp Group) (uint32, error) {
	st, ok := grp.(*Static)
	if !ok || st.selfIdx < 0 {
		return 0, crterr.New(crterr.NONEXIST)
	}
	return st.members[st.selfIdx], nil
}
