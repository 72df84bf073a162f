// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/westerndigitalcorporation/cra/internal/artifactstore"
	"github.com/westerndigitalcorporation/cra/internal/core"
	"github.com/westerndigitalcorporation/cra/internal/metadata"
	"github.com/westerndigitalcorporation/cra/internal/tableservice"

	_ "github.com/westerndigitalcorporation/cra/internal/vertex" // registers the "echo" factory
)

func newTestServer(t *testing.T) (*Server, context.Context) {
	t.Helper()
	ts := tableservice.NewMemory()
	instances := metadata.NewInstanceManager(ts)
	vertices := metadata.NewVertexManager(ts)
	endpoints := metadata.NewEndpointManager(ts)
	conns := metadata.NewConnectionManager(ts)
	artifacts := artifactstore.NewMemory()

	cfg := DefaultConfig
	cfg.InstanceName = "w1"
	cfg.Address = "127.0.0.1"
	cfg.Port = 1
	cfg.StorageConnStr = "memory:"

	s := NewServer(cfg, instances, vertices, endpoints, conns, artifacts)
	ctx := context.Background()
	require.NoError(t, instances.Register(ctx, cfg.InstanceName, cfg.Address, cfg.Port))
	return s, ctx
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig
	require.Error(t, cfg.Validate())
	cfg.InstanceName = "w1"
	require.Error(t, cfg.Validate())
	cfg.Port = 9000
	require.Error(t, cfg.Validate())
	cfg.StorageConnStr = "memory:"
	require.NoError(t, cfg.Validate())
}

func TestLoadVertexRejectsUndefinedDefinition(t *testing.T) {
	s, ctx := newTestServer(t)
	code := s.loadVertex(ctx, "v1", "no-such-def", nil)
	require.Equal(t, core.VertexNotDefined, code)
}

func TestLoadVertexSucceedsAndHostsVertex(t *testing.T) {
	s, ctx := newTestServer(t)
	require.NoError(t, s.vertices.Define(ctx, metadata.VertexDefinition{Name: "echo-def", FactoryKey: "echo"}))

	code := s.loadVertex(ctx, "v1", "echo-def", nil)
	require.Equal(t, core.Success, code)
	require.True(t, s.HostsVertex("v1"))

	row, ok, err := s.vertices.Get(ctx, s.cfg.InstanceName, "v1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "echo-def", row.Definition)
}

func TestLoadVertexReplacesPriorInstance(t *testing.T) {
	s, ctx := newTestServer(t)
	require.NoError(t, s.vertices.Define(ctx, metadata.VertexDefinition{Name: "echo-def", FactoryKey: "echo"}))

	require.Equal(t, core.Success, s.loadVertex(ctx, "v1", "echo-def", nil))
	first := s.hosted["v1"]
	require.Equal(t, core.Success, s.loadVertex(ctx, "v1", "echo-def", nil))
	require.NotSame(t, first, s.hosted["v1"])
}

func TestConnectInitiatorRejectsUnknownReceiver(t *testing.T) {
	s, ctx := newTestServer(t)
	code := s.connectInitiator(ctx, core.ConnectArgs{FromVertex: "a", FromEndpoint: "out", ToVertex: "missing", ToEndpoint: "in"}, false)
	require.Equal(t, core.VertexNotFound, code)
}
