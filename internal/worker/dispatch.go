// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package worker

import (
	"context"
	"net"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/cra/internal/core"
	"github.com/westerndigitalcorporation/cra/internal/metadata"
	"github.com/westerndigitalcorporation/cra/internal/vertex"
	"github.com/westerndigitalcorporation/cra/internal/wire"
)

// loadAssignedVertices implements §4.5 start-up step 2: load every vertex
// row assigned to this instance, instantiate it from its definition's
// factory, and initialize it.
func (s *Server) loadAssignedVertices(ctx context.Context) error {
	rows, err := s.vertices.AllForInstance(ctx, s.cfg.InstanceName)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if code := s.loadVertex(ctx, row.VertexName, row.Definition, row.Params); code != core.Success {
			log.Errorf("worker: loading %s (%s) at startup: %s", row.VertexName, row.Definition, code)
		}
	}
	return nil
}

// loadVertex implements the LOAD_VERTEX dispatch rule (§4.5): fetch the
// definition, download the artifact if needed (reference Store
// implementations hold it directly, so there's nothing to cache), construct
// and initialize, disposing any prior instance under the same name first.
func (s *Server) loadVertex(ctx context.Context, name, definition string, params []byte) core.Error {
	def, ok, err := s.vertices.Definition(ctx, definition)
	if err != nil {
		log.Errorf("worker: loading definition %s: %v", definition, err)
		return core.ServerFailed
	}
	if !ok {
		return core.VertexNotDefined
	}
	factory, ok := vertex.Lookup(def.FactoryKey)
	if !ok {
		return core.VertexNotDefined
	}
	if s.artifacts != nil {
		if _, found, err := s.artifacts.Get(ctx, definition); err != nil {
			log.Errorf("worker: fetching artifact for %s: %v", definition, err)
			return core.ServerFailed
		} else if !found {
			log.Infof("worker: no artifact uploaded for definition %s; using in-process factory %s", definition, def.FactoryKey)
		}
	}

	s.mu.Lock()
	if old, exists := s.hosted[name]; exists {
		old.v.Dispose()
		delete(s.hosted, name)
	}
	s.mu.Unlock()

	v := factory()
	if def.IsSharded {
		if sv, ok := v.(vertex.ShardedVertex); ok {
			if idx, ok := core.ShardIndexOf(name); ok {
				sv.SetShardIndex(idx)
			}
		}
	}

	hv := &hostedVertex{name: name}
	base := vertex.NewBase(func(epName string, dir metadata.Direction, async metadata.Async) error {
		return s.endpoints.Add(ctx, metadata.EndpointRow{VertexName: name, Endpoint: epName, Direction: dir, Async: async})
	})
	hv.base = base
	hv.v = v

	if err := v.Initialize(ctx, params, base); err != nil {
		log.Errorf("worker: initializing vertex %s: %v", name, err)
		return core.InitializationFailed
	}

	if err := s.vertices.Put(ctx, metadata.VertexRow{Instance: s.cfg.InstanceName, VertexName: name, Definition: definition, Params: params}); err != nil {
		log.Errorf("worker: persisting vertex row for %s: %v", name, err)
		return core.ServerFailed
	}

	s.mu.Lock()
	s.hosted[name] = hv
	s.mu.Unlock()
	return core.Success
}

// DispatchInitiator implements connection.LocalDispatcher: it performs the
// CONNECT_VERTEX_INITIATOR(_REVERSE) dispatch rule without a network hop,
// because the caller already determined the initiator vertex is hosted
// here (§4.6 step 4).
func (s *Server) DispatchInitiator(ctx context.Context, args core.ConnectArgs, reverse bool) core.Error {
	return s.connectInitiator(ctx, args, reverse)
}

// connectInitiator resolves the receiver's instance, dials it (through the
// stream pool), sends CONNECT_VERTEX_RECEIVER(_REVERSE), and on success
// hands the stream to the local output (or input, if reverse) endpoint
// (§4.5's CONNECT_VERTEX_INITIATOR dispatch rule).
func (s *Server) connectInitiator(ctx context.Context, args core.ConnectArgs, reverse bool) core.Error {
	receiverVertex := args.ToVertex
	if reverse {
		receiverVertex = args.FromVertex
	}

	row, ok, err := s.vertices.RowForActiveVertex(ctx, s.instances, receiverVertex)
	if err != nil {
		log.Errorf("worker: resolving receiver %s: %v", receiverVertex, err)
		return core.ServerFailed
	}
	if !ok {
		return core.VertexNotFound
	}
	inst, ok, err := s.instances.Get(ctx, row.Instance)
	if err != nil || !ok || inst.Address == "" {
		return core.ConnectionEstablishFailed
	}

	dialCtx, cancel := context.WithTimeout(ctx, core.DefaultDialTimeout)
	defer cancel()
	conn, err := s.pool.Dial(dialCtx, inst.Address, inst.Port)
	if err != nil {
		log.Errorf("worker: dialing receiver %s at %s:%d: %v", receiverVertex, inst.Address, inst.Port, err)
		return core.ConnectionEstablishFailed
	}

	tag := core.ConnectVertexReceiver
	if reverse {
		tag = core.ConnectVertexReceiverReverse
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
	if code != core.Success {
		conn.Close()
		return code
	}

	return s.attachStream(args, reverse, conn)
}

// attachStream hands the now-raw data stream to the locally hosted
// initiator-side endpoint: the from side's output, or for a reverse dial
// the to side's input.
func (s *Server) attachStream(args core.ConnectArgs, reverse bool, conn net.Conn) core.Error {
	var localVertex, localEndpoint string
	wantOutput := !reverse
	if reverse {
		localVertex, localEndpoint = args.ToVertex, args.ToEndpoint
	} else {
		localVertex, localEndpoint = args.FromVertex, args.FromEndpoint
	}

	s.mu.Lock()
	hv, ok := s.hosted[localVertex]
	s.mu.Unlock()
	if !ok {
		conn.Close()
		return core.VertexNotFound
	}

	if wantOutput {
		ep, ok := hv.base.Output(localEndpoint)
		if !ok {
			conn.Close()
			return core.EndpointNotFound
		}
		go func() {
			if err := ep.HandleOutput(context.Background(), conn); err != nil {
				log.Errorf("worker: %s.%s output ended: %v", localVertex, localEndpoint, err)
			}
		}()
	} else {
		ep, ok := hv.base.Input(localEndpoint)
		if !ok {
			conn.Close()
			return core.EndpointNotFound
		}
		go func() {
			defer conn.Close()
			if err := ep.HandleInput(context.Background(), conn); err != nil {
				log.Errorf("worker: %s.%s input ended: %v", localVertex, localEndpoint, err)
			}
		}()
	}
	return core.Success
}

// handleConn reads one control message from conn, dispatches it, writes the
// reply, and — for the two RECEIVER tags on success — detaches the socket
// from the dispatch loop entirely by handing it to the endpoint instead of
// closing it (§6: "the dispatcher must not read further on it").
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	if !s.pendingSem.TryAcquire() {
		wire.WriteErrorCode(conn, core.ErrTooBusy) //nolint:errcheck // best-effort reply before closing
		conn.Close()
		return
	}
	defer s.pendingSem.Release()

	tag, err := wire.ReadTag(conn)
	if err != nil {
		conn.Close()
		return
	}

	op := s.opMetric.Start(tagName(tag))
	defer op.End()

	if injected := s.opFailure.Get(tagName(tag)); injected != core.Success {
		op.Failed()
		wire.WriteErrorCode(conn, injected) //nolint:errcheck
		conn.Close()
		return
	}

	switch tag {
	case core.LoadVertex:
		args, err := wire.ReadLoadVertexArgs(conn)
		if err != nil {
			op.Failed()
			conn.Close()
			return
		}
		code := s.loadVertex(ctx, args.VertexName, args.Definition, args.Params)
		if code != core.Success {
			op.Failed()
		}
		wire.WriteErrorCode(conn, code) //nolint:errcheck
		conn.Close()

	case core.ConnectVertexInitiator, core.ConnectVertexInitiatorReverse:
		args, err := wire.ReadConnectArgs(conn)
		if err != nil {
			op.Failed()
			conn.Close()
			return
		}
		code := s.connectInitiator(ctx, args, tag == core.ConnectVertexInitiatorReverse)
		if code != core.Success {
			op.Failed()
		}
		wire.WriteErrorCode(conn, code) //nolint:errcheck
		conn.Close()

	case core.ConnectVertexReceiver, core.ConnectVertexReceiverReverse:
		s.handleConnectReceiver(conn, tag == core.ConnectVertexReceiverReverse, op)

	default:
		op.Failed()
		wire.WriteErrorCode(conn, core.ErrInvalidArgument) //nolint:errcheck
		conn.Close()
	}
}

// handleConnectReceiver implements the CONNECT_VERTEX_RECEIVER(_REVERSE)
// dispatch rule: resolve the local endpoint, reply, then detach.
func (s *Server) handleConnectReceiver(conn net.Conn, reverse bool, op interface{ Failed() }) {
	args, err := wire.ReadConnectArgs(conn)
	if err != nil {
		op.Failed()
		conn.Close()
		return
	}

	var localVertex, localEndpoint string
	wantInput := !reverse
	if reverse {
		localVertex, localEndpoint = args.FromVertex, args.FromEndpoint
	} else {
		localVertex, localEndpoint = args.ToVertex, args.ToEndpoint
	}

	s.mu.Lock()
	hv, ok := s.hosted[localVertex]
	s.mu.Unlock()
	if !ok {
		op.Failed()
		wire.WriteErrorCode(conn, core.VertexNotFound) //nolint:errcheck
		conn.Close()
		return
	}

	var epOK bool
	if wantInput {
		_, epOK = hv.base.Input(localEndpoint)
	} else {
		_, epOK = hv.base.Output(localEndpoint)
	}
	if !epOK {
		op.Failed()
		wire.WriteErrorCode(conn, core.EndpointNotFound) //nolint:errcheck
		conn.Close()
		return
	}

	if err := wire.WriteErrorCode(conn, core.Success); err != nil {
		conn.Close()
		return
	}

	// Detach: the socket is now the data stream, handed to the endpoint on
	// its own goroutine. killRemote is honored by the endpoint's own
	// lifecycle (disposing the vertex closes the connection via conn.Close
	// in Dispose-triggered cleanup); this reference worker relies on EOF
	// propagation rather than tracking killRemote explicitly.
	if wantInput {
		ep, _ := hv.base.Input(localEndpoint)
		go func() {
			defer conn.Close()
			if err := ep.HandleInput(context.Background(), conn); err != nil {
				log.Errorf("worker: %s.%s input ended: %v", localVertex, localEndpoint, err)
			}
		}()
	} else {
		ep, _ := hv.base.Output(localEndpoint)
		go func() {
			if err := ep.HandleOutput(context.Background(), conn); err != nil {
				log.Errorf("worker: %s.%s output ended: %v", localVertex, localEndpoint, err)
			}
		}()
	}
}

func tagName(tag core.MessageTag) string {
	switch tag {
	case core.LoadVertex:
		return "load_vertex"
	case core.ConnectVertexInitiator:
		return "connect_vertex_initiator"
	case core.ConnectVertexInitiatorReverse:
		return "connect_vertex_initiator_reverse"
	case core.ConnectVertexReceiver:
		return "connect_vertex_receiver"
	case core.ConnectVertexReceiverReverse:
		return "connect_vertex_receiver_reverse"
	default:
		return "unknown"
	}
}
