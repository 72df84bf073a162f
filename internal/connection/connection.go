// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package connection implements the connection-establishment engine (§4.6):
// validate, persist, then either short-circuit locally or dial the
// initiator's worker over the wire protocol. Grounded on the
// local-short-circuit-or-remote-dial shape of the teacher's (deleted)
// internal/curator/rpc_tractserver_talker.go.
package connection

import (
	"context"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/cra/internal/core"
	"github.com/westerndigitalcorporation/cra/internal/metadata"
	"github.com/westerndigitalcorporation/cra/internal/streampool"
	"github.com/westerndigitalcorporation/cra/internal/wire"
)

// LocalDispatcher is implemented by the worker hosting a vertex: it lets
// the engine short-circuit connection establishment when the initiator
// vertex is hosted in this same process (§4.6 step 4).
type LocalDispatcher interface {
	// HostsVertex reports whether vertex is currently loaded locally.
	HostsVertex(vertexName string) bool
	// DispatchInitiator performs CONNECT_VERTEX_INITIATOR(_REVERSE) locally,
	// without going over the network.
	DispatchInitiator(ctx context.Context, args core.ConnectArgs, reverse bool) core.Error
}

// Engine establishes, restores, and tears down connections.
type Engine struct {
	instances *metadata.InstanceManager
	conns     *metadata.ConnectionManager
	vertices  *metadata.VertexManager
	pool      *streampool.Pool
	local     LocalDispatcher
}

// NewEngine returns a connection engine.
func NewEngine(instances *metadata.InstanceManager, conns *metadata.ConnectionManager, vertices *metadata.VertexManager, pool *streampool.Pool, local LocalDispatcher) *Engine {
	return &Engine{instances: instances, conns: conns, vertices: vertices, pool: pool, local: local}
}

// Connect implements the algorithm from §4.6: validate, persist, then
// resolve and contact the initiator side. The metadata row is written
// before any network call and is not rolled back on failure (§7): the
// worker's reconcile loop will retry on its own schedule.
func (e *Engine) Connect(ctx context.Context, from, fromEp, to, toEp string, initiator core.ConnectionInitiator) core.Error {
	if _, ok, err := e.vertices.RowForVertex(ctx, from); err != nil {
		return core.ServerFailed
	} else if !ok {
		return core.VertexNotFound
	}
	if _, ok, err := e.vertices.RowForVertex(ctx, to); err != nil {
		return core.ServerFailed
	} else if !ok {
		return core.VertexNotFound
	}

	if err := e.conns.Add(ctx, metadata.ConnectionRow{
		FromVertex: from, FromEndpoint: fromEp, ToVertex: to, ToEndpoint: toEp, Initiator: initiator,
	}); err != nil {
		return core.ServerFailed
	}

	return e.dispatch(ctx, core.ConnectArgs{FromVertex: from, FromEndpoint: fromEp, ToVertex: to, ToEndpoint: toEp}, initiator)
}

// dispatch resolves the initiator vertex's instance and either short-
// circuits locally or opens a control stream to it (§4.6 steps 3-5).
func (e *Engine) dispatch(ctx context.Context, args core.ConnectArgs, initiator core.ConnectionInitiator) core.Error {
	reverse := initiator == core.ToSide
	initiatorVertex := args.FromVertex
	if reverse {
		initiatorVertex = args.ToVertex
	}

	if e.local != nil && e.local.HostsVertex(initiatorVertex) {
		return e.local.DispatchInitiator(ctx, args, reverse)
	}

	row, ok, err := e.vertices.RowForActiveVertex(ctx, e.instances, initiatorVertex)
	if err != nil {
		return core.ServerFailed
	}
	if !ok {
		return core.VertexNotFound
	}
	inst, ok, err := e.instances.Get(ctx, row.Instance)
	if err != nil || !ok || inst.Address == "" {
		return core.ConnectionEstablishFailed
	}

	dialCtx, cancel := context.WithTimeout(ctx, core.DefaultDialTimeout)
	defer cancel()
	conn, err := e.pool.Dial(dialCtx, inst.Address, inst.Port)
	if err != nil {
		log.Errorf("connection: dial %s:%d for initiator %s failed: %v", inst.Address, inst.Port, initiatorVertex, err)
		return core.ConnectionEstablishFailed
	}

	tag := core.ConnectVertexInitiator
	if reverse {
		tag = core.ConnectVertexInitiatorReverse
	}
	if err := wire.WriteTag(conn, tag); err != nil {
		conn.Close()
		return core.ConnectionEstablishFailed
	}
	if err := wire.WriteConnectArgs(conn, args); err != nil {
		conn.Close()
		return core.ConnectionEstablishFailed
	}
	code, err := wire.ReadErrorCode(conn)
	if err != nil {
		conn.Close()
		return core.ConnectionEstablishFailed
	}
	e.pool.Release(inst.Address, inst.Port, conn)
	return code
}

// Disconnect deletes the connection row and returns immediately; it is
// fire-and-forget per §7 and never fails from the caller's perspective.
func (e *Engine) Disconnect(ctx context.Context, from, fromEp, to, toEp string) {
	if err := e.conns.Delete(ctx, from, fromEp, to, toEp); err != nil {
		log.Errorf("connection: disconnect %s.%s -> %s.%s: %v", from, fromEp, to, toEp, err)
	}
}
