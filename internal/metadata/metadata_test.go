// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/westerndigitalcorporation/cra/internal/core"
	"github.com/westerndigitalcorporation/cra/internal/tableservice"
)

func TestInstantiateThenLookup(t *testing.T) {
	ctx := context.Background()
	ts := tableservice.NewMemory()
	vm := NewVertexManager(ts)

	require.NoError(t, vm.Define(ctx, VertexDefinition{Name: "echo", FactoryKey: "echo"}))
	require.NoError(t, vm.Put(ctx, VertexRow{Instance: "workerA", VertexName: "e1", Definition: "echo"}))

	row, ok, err := vm.Get(ctx, "workerA", "e1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "echo", row.Definition)

	row2, ok, err := vm.RowForVertex(ctx, "e1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "workerA", row2.Instance)
}

func TestEndpointAddThenDelete(t *testing.T) {
	ctx := context.Background()
	ts := tableservice.NewMemory()
	em := NewEndpointManager(ts)

	require.NoError(t, em.Add(ctx, EndpointRow{VertexName: "e1", Endpoint: "in", Direction: Input, Async: Sync}))
	_, ok, err := em.Get(ctx, "e1", "in")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, em.Delete(ctx, "e1", "in"))
	_, ok, err = em.Get(ctx, "e1", "in")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConnectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ts := tableservice.NewMemory()
	cm := NewConnectionManager(ts)

	c := ConnectionRow{FromVertex: "a", FromEndpoint: "out", ToVertex: "b", ToEndpoint: "in"}
	require.NoError(t, cm.Add(ctx, c))
	require.NoError(t, cm.Add(ctx, c))

	rows, err := cm.From(ctx, "a")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestResetEmptiesAllTables(t *testing.T) {
	ctx := context.Background()
	ts := tableservice.NewMemory()
	vm := NewVertexManager(ts)
	em := NewEndpointManager(ts)
	cm := NewConnectionManager(ts)
	sm := NewShardedVertexManager(ts)

	require.NoError(t, vm.Put(ctx, VertexRow{Instance: "w", VertexName: "v"}))
	require.NoError(t, em.Add(ctx, EndpointRow{VertexName: "v", Endpoint: "in", Direction: Input, Async: Sync}))
	require.NoError(t, cm.Add(ctx, ConnectionRow{FromVertex: "v", FromEndpoint: "out", ToVertex: "w", ToEndpoint: "in"}))
	require.NoError(t, sm.Register(ctx, ShardingInfo{BaseName: "src", AllShards: []int{0, 1}}))

	require.NoError(t, ts.Reset(ctx))

	_, ok, err := vm.Get(ctx, "w", "v")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = sm.Latest(ctx, "src")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVertexDefinitionNameValidation(t *testing.T) {
	valid := []string{"ab-cd", "a1b2c3", "$root"}
	invalid := []string{"AB", "a", "ab", "-abc", "abc-"}
	for _, n := range valid {
		require.True(t, core.IsValidDefinitionName(n), n)
	}
	for _, n := range invalid {
		require.False(t, core.IsValidDefinitionName(n), n)
	}
}

func TestShardedVertexChildPrefixScan(t *testing.T) {
	ctx := context.Background()
	ts := tableservice.NewMemory()
	vm := NewVertexManager(ts)

	require.NoError(t, vm.Put(ctx, VertexRow{Instance: "w", VertexName: core.ShardVertexName("src", 0)}))
	require.NoError(t, vm.Put(ctx, VertexRow{Instance: "w", VertexName: core.ShardVertexName("src", 1)}))
	require.NoError(t, vm.Put(ctx, VertexRow{Instance: "w", VertexName: "other"}))

	rows, err := vm.RowsForShardedVertex(ctx, "src")
	require.NoError(t, err)
	require.Len(t, rows, 2)
}
