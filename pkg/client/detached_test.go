// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package client

import (
	"context"
	"net"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/westerndigitalcorporation/cra/internal/core"
	"github.com/westerndigitalcorporation/cra/internal/metadata"
)

var ephemeralInstanceRe = regexp.MustCompile(`^[a-z]{16}$`)

func TestRegisterAsVertexGeneratesEphemeralInstance(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()

	dv, err := c.RegisterAsVertex(ctx, "detached-1", "")
	require.NoError(t, err)
	require.Regexp(t, ephemeralInstanceRe, dv.Instance())

	_, ok, err := c.instances.Get(ctx, dv.Instance())
	require.NoError(t, err)
	require.True(t, ok)

	row, ok, err := c.vertices.Get(ctx, dv.Instance(), "detached-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "detached-1", row.VertexName)
}

func TestRegisterAsVertexKeepsGivenInstance(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()
	require.NoError(t, c.instances.Register(ctx, "w1", "127.0.0.1", 9000))

	dv, err := c.RegisterAsVertex(ctx, "detached-1", "w1")
	require.NoError(t, err)
	require.Equal(t, "w1", dv.Instance())
}

func TestAddEndpointsPersistsRows(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()
	dv, err := c.RegisterAsVertex(ctx, "detached-1", "")
	require.NoError(t, err)

	require.NoError(t, dv.AddInputEndpoint(ctx, "in", metadata.Sync))
	require.NoError(t, dv.AddOutputEndpoint(ctx, "out", metadata.AsyncMode))

	inputs, err := c.endpoints.OfDirection(ctx, "detached-1", metadata.Input)
	require.NoError(t, err)
	require.Len(t, inputs, 1)
	require.Equal(t, "in", inputs[0].Endpoint)

	outputs, err := c.endpoints.OfDirection(ctx, "detached-1", metadata.Output)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	require.Equal(t, "out", outputs[0].Endpoint)
}

func TestOpenOutputStreamFailsWhenPeerMissing(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()
	dv, err := c.RegisterAsVertex(ctx, "detached-1", "")
	require.NoError(t, err)
	require.NoError(t, dv.AddOutputEndpoint(ctx, "out", metadata.Sync))

	_, err = dv.OpenOutputStream(ctx, "out", "no-such-vertex", "in")
	require.Error(t, err)

	// The connection row is persisted before the dial attempt, matching
	// internal/connection.Engine.Connect's not-rolled-back-on-failure
	// convention (§7).
	rows, err := c.conns.From(ctx, "detached-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestOpenInputStreamFailsWhenPeerMissing(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()
	dv, err := c.RegisterAsVertex(ctx, "detached-1", "")
	require.NoError(t, err)
	require.NoError(t, dv.AddInputEndpoint(ctx, "in", metadata.Sync))

	_, err = dv.OpenInputStream(ctx, "in", "no-such-vertex", "out")
	require.Error(t, err)

	rows, err := c.conns.To(ctx, "detached-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestDisposeDeletesRowsAndClosesStreams(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()
	dv, err := c.RegisterAsVertex(ctx, "detached-1", "")
	require.NoError(t, err)
	require.NoError(t, dv.AddInputEndpoint(ctx, "in", metadata.Sync))
	require.NoError(t, dv.AddOutputEndpoint(ctx, "out", metadata.Sync))

	outConn, outPeer := net.Pipe()
	inConn, inPeer := net.Pipe()
	dv.OutputConnections["out"] = outConn
	dv.InputConnections["in"] = inConn
	require.NoError(t, c.conns.Add(ctx, metadata.ConnectionRow{
		FromVertex: "detached-1", FromEndpoint: "out", ToVertex: "peer-a", ToEndpoint: "in", Initiator: core.FromSide,
	}))
	require.NoError(t, c.conns.Add(ctx, metadata.ConnectionRow{
		FromVertex: "peer-b", FromEndpoint: "out", ToVertex: "detached-1", ToEndpoint: "in", Initiator: core.ToSide,
	}))

	instance := dv.Instance()
	dv.Dispose(ctx)

	_, ok, err := c.vertices.Get(ctx, instance, "detached-1")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = c.instances.Get(ctx, instance)
	require.NoError(t, err)
	require.False(t, ok, "ephemeral instance should be deleted on dispose")

	from, err := c.conns.From(ctx, "detached-1")
	require.NoError(t, err)
	require.Empty(t, from)
	to, err := c.conns.To(ctx, "detached-1")
	require.NoError(t, err)
	require.Empty(t, to)

	inputs, err := c.endpoints.OfDirection(ctx, "detached-1", metadata.Input)
	require.NoError(t, err)
	require.Empty(t, inputs)
	outputs, err := c.endpoints.OfDirection(ctx, "detached-1", metadata.Output)
	require.NoError(t, err)
	require.Empty(t, outputs)

	_, err = outPeer.Write([]byte("x"))
	require.Error(t, err, "output stream should be closed")
	_, err = inPeer.Write([]byte("x"))
	require.Error(t, err, "input stream should be closed")
}

func TestDisposeLeavesNonEphemeralInstanceAlone(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()
	require.NoError(t, c.instances.Register(ctx, "w1", "127.0.0.1", 9000))
	dv, err := c.RegisterAsVertex(ctx, "detached-1", "w1")
	require.NoError(t, err)

	dv.Dispose(ctx)

	_, ok, err := c.instances.Get(ctx, "w1")
	require.NoError(t, err)
	require.True(t, ok, "explicitly given instance must survive dispose")
}
