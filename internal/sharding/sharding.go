// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package sharding implements the full-mesh connection arithmetic and
// shard-locator registry for sharded vertex groups (§4.8, §9). Grounded on
// the bounded fan-out/join pattern of the teacher's (deleted)
// internal/curator/pack_tracts_context.go, generalized here from packing
// tracts in parallel to instantiating/connecting shards in parallel.
package sharding

import (
	"sync"

	"github.com/westerndigitalcorporation/cra/internal/core"
)

// Edge is one connection to create as part of a full-mesh wiring.
type Edge struct {
	FromVertex, FromEndpoint string
	ToVertex, ToEndpoint     string
}

// FullMesh computes the connections for connectShardedVerticesWithFullMesh
// (§4.7, §4.8). fromShards has length F, fromEndpoints has length E_f;
// toShards has length T, toEndpoints has length E_t. Per the arity rule,
// E_f must equal T and E_t must equal F; otherwise this returns
// VerticesEndpointsNotMatched and no edges.
func FullMesh(fromBase string, fromShards int, fromEndpoints []string, toBase string, toShards int, toEndpoints []string) ([]Edge, core.Error) {
	ef, et := len(fromEndpoints), len(toEndpoints)
	if ef != toShards || et != fromShards {
		return nil, core.VerticesEndpointsNotMatched
	}
	edges := make([]Edge, 0, fromShards*toShards)
	for j := 0; j < fromShards; j++ {
		for k := 0; k < toShards; k++ {
			edges = append(edges, Edge{
				FromVertex:   core.ShardVertexName(fromBase, j),
				FromEndpoint: fromEndpoints[k],
				ToVertex:     core.ShardVertexName(toBase, k),
				ToEndpoint:   toEndpoints[j],
			})
		}
	}
	return edges, core.Success
}

// Locator maps a routing key to a shard index within a shard count.
type Locator func(key string, shardCount int) int

var (
	registryMu sync.Mutex
	registry   = map[string]Locator{
		"mod": modLocator,
	}
)

// modLocator is the built-in "key mod N" locator from §9's design-note
// fallback DSL: it hashes key with FNV-1a and reduces mod shardCount.
func modLocator(key string, shardCount int) int {
	if shardCount <= 0 {
		return 0
	}
	var h uint32 = 2166136261
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= 16777619
	}
	return int(h % uint32(shardCount))
}

// RegisterLocator registers a named shard-locator function (§3.1, §9).
func RegisterLocator(name string, l Locator) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = l
}

// LookupLocator resolves a locator-registry key.
func LookupLocator(name string) (Locator, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	l, ok := registry[name]
	return l, ok
}

// Fanout runs work for each of n shard indices concurrently and joins on
// all of them, returning the first non-nil error (if any). Grounded on
// pack_tracts_context.go's bounded parallel-fan-out/join helper.
func Fanout(n int, work func(shardIndex int) error) error {
	var wg sync.WaitGroup
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			errs[i] = work(i)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
