/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ntpserver

import (
	"container/list"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/time/rate"
)

// DefaultBucketCapacity and DefaultRefillPerSecond are the default
// token bucket parameters.
const (
	DefaultBucketCapacity  = 8
	DefaultRefillPerSecond = 1
	// MinTableEntries is the floor on table size; a smaller table
	// would churn entries faster than their buckets refill.
	MinTableEntries = 64
)

type bucketEntry struct {
	key      uint64
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-source-address token bucket table with LRU
// eviction, keyed by an xxhash of the source IPv4 address. Once it
// holds maxEntries buckets, the least-recently-used bucket is evicted
// to make room for a new source, unless that bucket was used within
// the current refill window — evicting those would let a burster reset
// its own bucket by flooding the table. In that case nothing is
// evicted and the new source is added anyway, so the table grows past
// maxEntries for as long as its least-recently-used entry stays that
// recent.
type RateLimiter struct {
	mu          sync.Mutex
	capacity    float64
	refillRate  float64
	maxEntries  int
	refillEvery time.Duration

	entries map[uint64]*list.Element // key -> LRU element
	order   *list.List               // front = most recently used
}

// NewRateLimiter builds a table sized to at least MinTableEntries.
func NewRateLimiter(bucketCapacity, refillPerSecond float64, maxEntries int) *RateLimiter {
	if maxEntries < MinTableEntries {
		maxEntries = MinTableEntries
	}
	return &RateLimiter{
		capacity:    bucketCapacity,
		refillRate:  refillPerSecond,
		maxEntries:  maxEntries,
		refillEvery: time.Duration(float64(time.Second) / refillPerSecond),
		entries:     make(map[uint64]*list.Element, maxEntries),
		order:       list.New(),
	}
}

func keyFor(addr [4]byte) uint64 {
	return xxhash.Sum64(addr[:])
}

// Allow reports whether a request from addr may proceed, consuming a
// token if so. The source port does not select a separate bucket. now
// is the caller's single time reading for this datagram (wallNow in
// Server.HandleDatagram), used for both refill and consumption so the
// decision stays monotonic.
func (r *RateLimiter) Allow(addr [4]byte, _ uint16, now time.Time) bool {
	key := keyFor(addr)

	r.mu.Lock()
	defer r.mu.Unlock()

	if el, ok := r.entries[key]; ok {
		r.order.MoveToFront(el)
		entry := el.Value.(*bucketEntry)
		entry.lastSeen = now
		return entry.limiter.AllowN(now, 1)
	}

	if r.order.Len() >= r.maxEntries {
		r.evictLRU(now)
	}

	limiter := rate.NewLimiter(rate.Limit(r.refillRate), int(r.capacity))
	entry := &bucketEntry{key: key, limiter: limiter, lastSeen: now}
	el := r.order.PushFront(entry)
	r.entries[key] = el

	return entry.limiter.AllowN(now, 1)
}

// evictLRU drops the least-recently-used entry, unless it was seen
// within the current refill window. In that case nothing is dropped
// and the caller's new entry makes the table one larger, rather than
// evict a bucket that is still enforcing a deny.
func (r *RateLimiter) evictLRU(now time.Time) {
	back := r.order.Back()
	if back == nil {
		return
	}
	entry := back.Value.(*bucketEntry)
	if now.Sub(entry.lastSeen) < r.refillEvery {
		return
	}
	r.order.Remove(back)
	delete(r.entries, entry.key)
}
