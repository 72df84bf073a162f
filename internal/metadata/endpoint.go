// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package metadata

import (
	"context"
	"strings"

	"github.com/westerndigitalcorporation/cra/internal/core"
	"github.com/westerndigitalcorporation/cra/internal/tableservice"
)

// Direction is an endpoint's data-flow direction.
type Direction string

// Async is an endpoint's synchrony mode.
type Async string

const (
	// Input endpoints consume an inbound byte stream.
	Input Direction = "input"
	// Output endpoints produce an outbound byte stream.
	Output Direction = "output"

	// Sync endpoints may block a dedicated goroutine.
	Sync Async = "sync"
	// AsyncMode endpoints yield cooperatively between reads/writes.
	AsyncMode Async = "async"
)

// EndpointRow is a single endpoint's persisted metadata (§3). Direction and
// Async are immutable once created.
type EndpointRow struct {
	VertexName string
	Endpoint   string
	Direction  Direction
	Async      Async
}

// EndpointManager manages EndpointRow entries, keyed by (vertex, endpoint).
type EndpointManager struct {
	ts tableservice.TableService
}

// NewEndpointManager returns a manager backed by ts.
func NewEndpointManager(ts tableservice.TableService) *EndpointManager {
	return &EndpointManager{ts: ts}
}

func encodeEndpoint(e EndpointRow) []byte {
	return []byte(string(e.Direction) + "\x00" + string(e.Async))
}

func decodeEndpoint(vertex, name string, b []byte) EndpointRow {
	parts := strings.SplitN(string(b), "\x00", 2)
	e := EndpointRow{VertexName: vertex, Endpoint: name}
	if len(parts) > 0 {
		e.Direction = Direction(parts[0])
	}
	if len(parts) > 1 {
		e.Async = Async(parts[1])
	}
	return e
}

// Add creates or replaces an endpoint row.
func (m *EndpointManager) Add(ctx context.Context, e EndpointRow) error {
	return m.ts.PutRow(ctx, core.EndpointTableName, e.VertexName, e.Endpoint, encodeEndpoint(e))
}

// Get returns the endpoint row for (vertex, endpoint).
func (m *EndpointManager) Get(ctx context.Context, vertex, endpoint string) (EndpointRow, bool, error) {
	v, ok, err := m.ts.GetRow(ctx, core.EndpointTableName, vertex, endpoint)
	if err != nil || !ok {
		return EndpointRow{}, ok, err
	}
	return decodeEndpoint(vertex, endpoint, v), true, nil
}

// Delete removes a single endpoint row.
func (m *EndpointManager) Delete(ctx context.Context, vertex, endpoint string) error {
	return m.ts.DeleteRow(ctx, core.EndpointTableName, vertex, endpoint)
}

// AllOf returns every endpoint registered for vertex.
func (m *EndpointManager) AllOf(ctx context.Context, vertex string) ([]EndpointRow, error) {
	rows, err := m.ts.ScanPartition(ctx, core.EndpointTableName, vertex)
	if err != nil {
		return nil, err
	}
	out := make([]EndpointRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, decodeEndpoint(vertex, r.Row, r.Value))
	}
	return out, nil
}

// OfDirection returns every endpoint of the given direction for vertex.
func (m *EndpointManager) OfDirection(ctx context.Context, vertex string, dir Direction) ([]EndpointRow, error) {
	all, err := m.AllOf(ctx, vertex)
	if err != nil {
		return nil, err
	}
	var out []EndpointRow
	for _, e := range all {
		if e.Direction == dir {
			out = append(out, e)
		}
	}
	return out, nil
}

// DeleteAllForVertex deletes every endpoint row belonging to vertex,
// batching the deletes through the table service (§4.3).
func (m *EndpointManager) DeleteAllForVertex(ctx context.Context, vertex string) error {
	all, err := m.AllOf(ctx, vertex)
	if err != nil {
		return err
	}
	keys := make([]tableservice.RowKey, 0, len(all))
	for _, e := range all {
		keys = append(keys, tableservice.RowKey{Partition: vertex, Row: e.Endpoint})
	}
	return m.ts.DeleteBatch(ctx, core.EndpointTableName, keys)
}
