// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package connection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/westerndigitalcorporation/cra/internal/core"
	"github.com/westerndigitalcorporation/cra/internal/metadata"
	"github.com/westerndigitalcorporation/cra/internal/streampool"
	"github.com/westerndigitalcorporation/cra/internal/tableservice"
)

type fakeLocal struct {
	hosted map[string]bool
	code   core.Error
}

func (f *fakeLocal) HostsVertex(name string) bool { return f.hosted[name] }
func (f *fakeLocal) DispatchInitiator(_ context.Context, _ core.ConnectArgs, _ bool) core.Error {
	return f.code
}

func newTestEngine(local LocalDispatcher) (*Engine, *metadata.VertexManager) {
	ts := tableservice.NewMemory()
	instances := metadata.NewInstanceManager(ts)
	conns := metadata.NewConnectionManager(ts)
	vertices := metadata.NewVertexManager(ts)
	return NewEngine(instances, conns, vertices, streampool.New(8), local), vertices
}

func TestConnectVertexNotFound(t *testing.T) {
	engine, _ := newTestEngine(nil)
	code := engine.Connect(context.Background(), "missing-a", "out", "missing-b", "in", core.FromSide)
	require.Equal(t, core.VertexNotFound, code)
}

func TestConnectLocalShortCircuit(t *testing.T) {
	local := &fakeLocal{hosted: map[string]bool{"a": true}, code: core.Success}
	engine, vertices := newTestEngine(local)
	ctx := context.Background()
	require.NoError(t, vertices.Put(ctx, metadata.VertexRow{Instance: "w", VertexName: "a"}))
	require.NoError(t, vertices.Put(ctx, metadata.VertexRow{Instance: "w", VertexName: "b"}))

	code := engine.Connect(ctx, "a", "out", "b", "in", core.FromSide)
	require.Equal(t, core.Success, code)
}

func TestConnectIsIdempotentAtEngineLevel(t *testing.T) {
	local := &fakeLocal{hosted: map[string]bool{"a": true}, code: core.Success}
	engine, vertices := newTestEngine(local)
	ctx := context.Background()
	require.NoError(t, vertices.Put(ctx, metadata.VertexRow{Instance: "w", VertexName: "a"}))
	require.NoError(t, vertices.Put(ctx, metadata.VertexRow{Instance: "w", VertexName: "b"}))

	require.Equal(t, core.Success, engine.Connect(ctx, "a", "out", "b", "in", core.FromSide))
	require.Equal(t, core.Success, engine.Connect(ctx, "a", "out", "b", "in", core.FromSide))
}
