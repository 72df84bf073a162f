// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package client

import (
	"context"
	"net"
	"sync"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/cra/internal/core"
	"github.com/westerndigitalcorporation/cra/internal/metadata"
	"github.com/westerndigitalcorporation/cra/internal/wire"
)

// DetachedVertex is a client-hosted vertex (§4.7): a vertex with no worker
// of its own, registered directly by a client process under an instance row
// that never accepts inbound dials. Grounded on internal/worker/dispatch.go's
// connectInitiator/handleConnectReceiver pair, since a detached vertex must
// perform both halves of that handshake itself — there is no worker process
// to host a CONNECT_VERTEX_INITIATOR dispatch for it.
type DetachedVertex struct {
	c         *Client
	name      string
	instance  string
	ephemeral bool

	mu                sync.Mutex
	endpoints         map[string]metadata.Direction
	InputConnections  map[string]net.Conn
	OutputConnections map[string]net.Conn
}

// RegisterAsVertex registers name as a detached vertex (§4.7, §4.3's
// "instance row is represented ... as (instance=name, vertex='')"). An
// empty instance generates a random ephemeral one via
// core.NewEphemeralInstanceName, deleted again on Dispose; a non-empty
// instance is assumed to already be registered by its owner and is left
// alone on Dispose.
func (c *Client) RegisterAsVertex(ctx context.Context, name, instance string) (dv *DetachedVertex, err error) {
	defer func() { c.recordResult("register_as_vertex", err) }()

	ephemeral := instance == ""
	if ephemeral {
		instance, err = core.NewEphemeralInstanceName()
		if err != nil {
			return nil, err
		}
		if err = c.instances.Register(ctx, instance, "", 0); err != nil {
			return nil, err
		}
	}

	if err = c.vertices.Put(ctx, metadata.VertexRow{Instance: instance, VertexName: name}); err != nil {
		return nil, err
	}

	return &DetachedVertex{
		c:                 c,
		name:              name,
		instance:          instance,
		ephemeral:         ephemeral,
		endpoints:         make(map[string]metadata.Direction),
		InputConnections:  make(map[string]net.Conn),
		OutputConnections: make(map[string]net.Conn),
	}, nil
}

// Name returns the detached vertex's name.
func (d *DetachedVertex) Name() string { return d.name }

// Instance returns the (possibly ephemeral) instance name the vertex was
// registered under.
func (d *DetachedVertex) Instance() string { return d.instance }

// AddInputEndpoint registers an input endpoint on this detached vertex.
func (d *DetachedVertex) AddInputEndpoint(ctx context.Context, endpoint string, async metadata.Async) error {
	return d.addEndpoint(ctx, endpoint, metadata.Input, async)
}

// AddOutputEndpoint registers an output endpoint on this detached vertex.
func (d *DetachedVertex) AddOutputEndpoint(ctx context.Context, endpoint string, async metadata.Async) error {
	return d.addEndpoint(ctx, endpoint, metadata.Output, async)
}

func (d *DetachedVertex) addEndpoint(ctx context.Context, endpoint string, dir metadata.Direction, async metadata.Async) error {
	if err := d.c.endpoints.Add(ctx, metadata.EndpointRow{VertexName: d.name, Endpoint: endpoint, Direction: dir, Async: async}); err != nil {
		return err
	}
	d.mu.Lock()
	d.endpoints[endpoint] = dir
	d.mu.Unlock()
	return nil
}

// OpenOutputStream wires this detached vertex's output endpoint to
// toVertex.toEndpoint: it persists the connection row, then dials toVertex's
// worker directly and performs the CONNECT_VERTEX_RECEIVER handshake
// (non-reverse), since a detached vertex can never be the dialed-into side
// (§4.5's killRemote note: "true from detached vertices which cannot accept
// inbound dials"). The resulting stream is kept in OutputConnections for the
// caller to write to.
func (d *DetachedVertex) OpenOutputStream(ctx context.Context, localEndpoint, toVertex, toEndpoint string) (net.Conn, error) {
	conn, err := d.open(ctx, d.name, localEndpoint, toVertex, toEndpoint, false, core.FromSide)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.OutputConnections[localEndpoint] = conn
	d.mu.Unlock()
	return conn, nil
}

// OpenInputStream wires fromVertex.fromEndpoint to this detached vertex's
// input endpoint: it persists the connection row, then dials fromVertex's
// worker directly and performs the CONNECT_VERTEX_RECEIVER_REVERSE
// handshake, since this detached vertex is the one that must do the dialing
// regardless of which side logically produces data. The resulting stream is
// kept in InputConnections for the caller to read from — the source's
// RestoreAllConnections routed this case into OutputConnections, which
// would have handed a consumer its own stream back as if it were a
// producer; restoring it into InputConnections here avoids that (§9).
func (d *DetachedVertex) OpenInputStream(ctx context.Context, localEndpoint, fromVertex, fromEndpoint string) (net.Conn, error) {
	conn, err := d.open(ctx, fromVertex, fromEndpoint, d.name, localEndpoint, true, core.ToSide)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.InputConnections[localEndpoint] = conn
	d.mu.Unlock()
	return conn, nil
}

// open persists the connection row, resolves the side to dial (from if
// reverse, to otherwise — the side that is not this detached vertex), and
// performs the wire handshake, mirroring
// internal/worker/dispatch.go's connectInitiator exactly except that the
// resulting stream is returned to the caller instead of being handed to a
// locally hosted vertex.Base endpoint (a detached vertex has none).
func (d *DetachedVertex) open(ctx context.Context, from, fromEp, to, toEp string, reverse bool, initiator core.ConnectionInitiator) (net.Conn, error) {
	if err := d.c.conns.Add(ctx, metadata.ConnectionRow{
		FromVertex: from, FromEndpoint: fromEp, ToVertex: to, ToEndpoint: toEp, Initiator: initiator,
	}); err != nil {
		return nil, err
	}

	dialVertex := to
	if reverse {
		dialVertex = from
	}
	row, ok, err := d.c.vertices.RowForActiveVertex(ctx, d.c.instances, dialVertex)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.VertexNotFound.AsError()
	}
	inst, ok, err := d.c.instances.Get(ctx, row.Instance)
	if err != nil {
		return nil, err
	}
	if !ok || inst.Address == "" {
		return nil, core.ConnectionEstablishFailed.AsError()
	}

	dialCtx, cancel := context.WithTimeout(ctx, core.DefaultDialTimeout)
	defer cancel()
	conn, err := d.c.pool.Dial(dialCtx, inst.Address, inst.Port)
	if err != nil {
		log.Errorf("client: dialing %s at %s:%d for detached vertex %s: %v", dialVertex, inst.Address, inst.Port, d.name, err)
		return nil, core.ConnectionEstablishFailed.AsError()
	}

	tag := core.ConnectVertexReceiver
	if reverse {
		tag = core.ConnectVertexReceiverReverse
	}
	args := core.ConnectArgs{FromVertex: from, FromEndpoint: fromEp, ToVertex: to, ToEndpoint: toEp, KillRemote: true}
	if err := wire.WriteTag(conn, tag); err != nil {
		conn.Close()
		return nil, err
	}
	if err := wire.WriteConnectArgs(conn, args); err != nil {
		conn.Close()
		return nil, err
	}
	code, err := wire.ReadErrorCode(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if code != core.Success {
		conn.Close()
		return nil, code.AsError()
	}
	return conn, nil
}

// Restore re-reads this detached vertex's connection rows from metadata and
// redials every one of them (§4.7, §9), for use after a client process
// restart finds its previously opened streams gone. Outbound rows (this
// vertex as FromVertex) restore into OutputConnections; inbound rows (this
// vertex as ToVertex) restore into InputConnections.
func (d *DetachedVertex) Restore(ctx context.Context) error {
	out, err := d.c.conns.From(ctx, d.name)
	if err != nil {
		return err
	}
	for _, row := range out {
		if _, err := d.OpenOutputStream(ctx, row.FromEndpoint, row.ToVertex, row.ToEndpoint); err != nil {
			log.Errorf("client: restoring %s.%s -> %s.%s: %v", row.FromVertex, row.FromEndpoint, row.ToVertex, row.ToEndpoint, err)
		}
	}

	in, err := d.c.conns.To(ctx, d.name)
	if err != nil {
		return err
	}
	for _, row := range in {
		if row.FromVertex == d.name {
			continue // already restored above; From(d.name) also matches To(d.name) for self-loops
		}
		if _, err := d.OpenInputStream(ctx, row.ToEndpoint, row.FromVertex, row.FromEndpoint); err != nil {
			log.Errorf("client: restoring %s.%s -> %s.%s: %v", row.FromVertex, row.FromEndpoint, row.ToVertex, row.ToEndpoint, err)
		}
	}
	return nil
}

// Dispose deletes this detached vertex's endpoint rows, every connection
// touching it, the vertex row itself, the ephemeral instance row if one was
// generated, and closes every held stream. It is infallible from the
// caller's point of view: any internal error is logged and suppressed (§7,
// §8 scenario 5, testable property 5).
func (d *DetachedVertex) Dispose(ctx context.Context) {
	d.mu.Lock()
	for ep, conn := range d.InputConnections {
		conn.Close()
		delete(d.InputConnections, ep)
	}
	for ep, conn := range d.OutputConnections {
		conn.Close()
		delete(d.OutputConnections, ep)
	}
	d.mu.Unlock()

	if _, err := d.c.conns.DeleteAllForVertex(ctx, d.name); err != nil {
		log.Errorf("client: disposing detached vertex %s: deleting connections: %v", d.name, err)
	}
	if err := d.c.endpoints.DeleteAllForVertex(ctx, d.name); err != nil {
		log.Errorf("client: disposing detached vertex %s: deleting endpoints: %v", d.name, err)
	}
	if err := d.c.vertices.Delete(ctx, d.instance, d.name); err != nil {
		log.Errorf("client: disposing detached vertex %s: deleting vertex row: %v", d.name, err)
	}
	if d.ephemeral {
		if err := d.c.instances.Delete(ctx, d.instance); err != nil {
			log.Errorf("client: disposing detached vertex %s: deleting ephemeral instance %s: %v", d.name, d.instance, err)
		}
	}
	d.c.recordResult("dispose_detached", nil)
}
