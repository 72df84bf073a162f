// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/westerndigitalcorporation/cra/internal/core"
	"github.com/westerndigitalcorporation/cra/internal/sharding"
)

func TestDefineVertexRejectsInvalidName(t *testing.T) {
	c := NewMockClient()
	err := c.DefineVertex(context.Background(), "", "echo", false)
	require.Error(t, err)
}

func TestDefineAndInstantiateVertex(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()
	require.NoError(t, c.DefineVertex(ctx, "echo-def", "echo", false))
	require.NoError(t, c.InstantiateVertex(ctx, "w1", "v1", "echo-def", []byte("params")))

	row, ok, err := c.vertices.Get(ctx, "w1", "v1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("params"), row.Params)
}

func TestInstantiateVertexRequiresKnownDefinition(t *testing.T) {
	c := NewMockClient()
	err := c.InstantiateVertex(context.Background(), "w1", "v1", "no-such-def", nil)
	require.Error(t, err)
}

func TestInstantiateShardedVertexRegistersDescriptor(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()
	require.NoError(t, c.DefineVertex(ctx, "echo-def", "echo", true))

	sharding.RegisterLocator("test-locator", func(key string, shardCount int) int { return 0 })
	require.NoError(t, c.InstantiateShardedVertex(ctx, []string{"w1", "w2"}, "base", "echo-def", nil, 2, "test-locator"))

	info, ok, err := c.sharded.Latest(ctx, "base")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, info.AllShards, 4)

	for shard := 0; shard < 4; shard++ {
		name := core.ShardVertexName("base", shard)
		_, ok, err := c.vertices.RowForVertex(ctx, name)
		require.NoError(t, err)
		require.True(t, ok, "shard %d should have been instantiated", shard)
	}
}

func TestInstantiateShardedVertexRejectsUnknownLocator(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()
	require.NoError(t, c.DefineVertex(ctx, "echo-def", "echo", true))
	err := c.InstantiateShardedVertex(ctx, []string{"w1"}, "base", "echo-def", nil, 1, "no-such-locator")
	require.Error(t, err)
}

func TestConnectAndDisconnectRoundTrip(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()
	require.NoError(t, c.DefineVertex(ctx, "echo-def", "echo", false))
	require.NoError(t, c.InstantiateVertex(ctx, "w1", "a", "echo-def", nil))
	require.NoError(t, c.InstantiateVertex(ctx, "w1", "b", "echo-def", nil))

	err := c.Connect(ctx, "a", "out", "b", "in", core.FromSide)
	require.Error(t, err) // no local dispatcher wired into a bare client

	c.Disconnect(ctx, "a", "out", "b", "in")
}

func TestDeleteVertexRemovesConnectionsAndEndpoints(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()
	require.NoError(t, c.DefineVertex(ctx, "echo-def", "echo", false))
	require.NoError(t, c.InstantiateVertex(ctx, "w1", "v1", "echo-def", nil))

	require.NoError(t, c.DeleteVertex(ctx, "w1", "v1"))
	_, ok, err := c.vertices.Get(ctx, "w1", "v1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteInstance(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()
	require.NoError(t, c.instances.Register(ctx, "w1", "127.0.0.1", 9000))
	require.NoError(t, c.DeleteInstance(ctx, "w1"))
	_, ok, err := c.instances.Get(ctx, "w1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReset(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()
	require.NoError(t, c.DefineVertex(ctx, "echo-def", "echo", false))
	require.NoError(t, c.Reset(ctx))
	_, ok, err := c.vertices.Definition(ctx, "echo-def")
	require.NoError(t, err)
	require.False(t, ok)
}
