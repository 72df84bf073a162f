// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package streampool implements a process-wide cache of idle outbound TCP
// streams keyed by (address, port), so that repeated control RPCs and
// connection-establishment dials to the same worker don't pay a fresh
// TCP+dial-timeout cost every time (§4.2).
package streampool

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/westerndigitalcorporation/cra/internal/core"
)

// key identifies a pool bucket.
type key struct {
	addr string
	port int
}

func (k key) String() string { return fmt.Sprintf("%s:%d", k.addr, k.port) }

// Pool caches idle *net.TCPConn streams per (address, port), bounded in
// total count by an LRU eviction policy, grounded on
// pkg/rpc/connection_cache.go's ref-counted lru.Cache of *rpc.Client
// (adapted here for raw streams instead of RPC clients).
type Pool struct {
	mu      sync.Mutex
	buckets map[key][]net.Conn
	lru     *lru.Cache // tracks (key, streamPtr) entries for total-count eviction
	maxIdle int
}

// New returns a Pool that keeps at most maxIdlePerPool idle streams in total
// across all buckets.
func New(maxIdlePerPool int) *Pool {
	p := &Pool{
		buckets: make(map[key][]net.Conn),
		maxIdle: maxIdlePerPool,
	}
	p.lru = lru.New(maxIdlePerPool)
	// OnEvicted runs with p.mu held. It closes only a stream still idle in
	// its bucket; a stream TryGet already popped is in use and stays open.
	p.lru.OnEvicted = func(lk lru.Key, value interface{}) {
		ck := lk.(connLRUKey)
		bucket := p.buckets[ck.k]
		for i, c := range bucket {
			if c == ck.conn {
				p.buckets[ck.k] = append(bucket[:i], bucket[i+1:]...)
				if conn, ok := value.(net.Conn); ok {
					conn.Close()
				}
				return
			}
		}
	}
	return p
}

// TryGet pops a cached idle stream for (addr, port), or returns nil, false
// if none is available.
func (p *Pool) TryGet(addr string, port int) (net.Conn, bool) {
	k := key{addr, port}
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.buckets[k]
	if len(bucket) == 0 {
		return nil, false
	}
	conn := bucket[len(bucket)-1]
	p.buckets[k] = bucket[:len(bucket)-1]
	p.lru.Remove(connLRUKey{k, conn})
	return conn, true
}

// Release returns a healthy stream to the pool for future reuse. Callers
// that observed an IO error on the stream must not call Release; they
// should Close it themselves instead.
func (p *Pool) Release(addr string, port int, conn net.Conn) {
	k := key{addr, port}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buckets[k] = append(p.buckets[k], conn)
	p.lru.Add(connLRUKey{k, conn}, conn)
}

// connLRUKey makes (bucket key, connection) hashable for use as an lru.Key.
type connLRUKey struct {
	k    key
	conn net.Conn
}

// Dial returns a stream for (addr, port): a pooled idle one if available,
// otherwise a freshly dialed one.
func (p *Pool) Dial(ctx context.Context, addr string, port int) (net.Conn, error) {
	if conn, ok := p.TryGet(addr, port); ok {
		return conn, nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", addr, port))
	if err != nil {
		return nil, core.ErrRPC.AsError()
	}
	return conn, nil
}

// CloseAll closes every idle pooled stream. Used on shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, bucket := range p.buckets {
		for _, conn := range bucket {
			conn.Close()
		}
		delete(p.buckets, k)
	}
	p.lru.Clear()
}

// Len reports how many idle streams are currently pooled, for tests and the
// worker's /status endpoint.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, bucket := range p.buckets {
		n += len(bucket)
	}
	return n
}
