// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package metadata

import (
	"context"
	"strings"

	"github.com/westerndigitalcorporation/cra/internal/core"
	"github.com/westerndigitalcorporation/cra/internal/tableservice"
)

// ConnectionRow is a single persisted connection (§3). It is identified by
// its full 4-tuple; there is no separate surrogate key.
type ConnectionRow struct {
	FromVertex   string
	FromEndpoint string
	ToVertex     string
	ToEndpoint   string
	Initiator    core.ConnectionInitiator
}

// connectionRowKey builds the row key portion (to-side half) of a
// connection's identity; FromVertex is the partition.
func connectionRowKey(fromEndpoint, toVertex, toEndpoint string) string {
	return fromEndpoint + "\x00" + toVertex + "\x00" + toEndpoint
}

// ConnectionManager manages ConnectionRow entries, partitioned by
// FromVertex so ConnectionsFrom is a single-partition scan.
type ConnectionManager struct {
	ts tableservice.TableService
}

// NewConnectionManager returns a manager backed by ts.
func NewConnectionManager(ts tableservice.TableService) *ConnectionManager {
	return &ConnectionManager{ts: ts}
}

func encodeConnection(c ConnectionRow) []byte {
	initiator := "0"
	if c.Initiator == core.ToSide {
		initiator = "1"
	}
	return []byte(initiator)
}

func decodeConnection(from, rowKey string, b []byte) ConnectionRow {
	parts := strings.SplitN(rowKey, "\x00", 3)
	c := ConnectionRow{FromVertex: from}
	if len(parts) > 0 {
		c.FromEndpoint = parts[0]
	}
	if len(parts) > 1 {
		c.ToVertex = parts[1]
	}
	if len(parts) > 2 {
		c.ToEndpoint = parts[2]
	}
	if string(b) == "1" {
		c.Initiator = core.ToSide
	}
	return c
}

// Add creates or replaces a connection row. Idempotent: adding the same
// 4-tuple twice leaves exactly one row (§8 invariant 3).
func (m *ConnectionManager) Add(ctx context.Context, c ConnectionRow) error {
	key := connectionRowKey(c.FromEndpoint, c.ToVertex, c.ToEndpoint)
	return m.ts.PutRow(ctx, core.ConnectionTableName, c.FromVertex, key, encodeConnection(c))
}

// Delete removes the connection row identified by the 4-tuple.
func (m *ConnectionManager) Delete(ctx context.Context, fromVertex, fromEndpoint, toVertex, toEndpoint string) error {
	key := connectionRowKey(fromEndpoint, toVertex, toEndpoint)
	return m.ts.DeleteRow(ctx, core.ConnectionTableName, fromVertex, key)
}

// From returns every connection whose FromVertex is vertex.
func (m *ConnectionManager) From(ctx context.Context, vertex string) ([]ConnectionRow, error) {
	rows, err := m.ts.ScanPartition(ctx, core.ConnectionTableName, vertex)
	if err != nil {
		return nil, err
	}
	out := make([]ConnectionRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, decodeConnection(vertex, r.Row, r.Value))
	}
	return out, nil
}

// To returns every connection whose ToVertex is vertex. This is an
// eventually-consistent full-table scan (the table is partitioned by
// FromVertex, so finding connections *to* a vertex can't use a single
// partition lookup) — acceptable per §4.3 since scans need only be
// eventually consistent.
func (m *ConnectionManager) To(ctx context.Context, vertex string) ([]ConnectionRow, error) {
	rows, err := m.ts.ScanPrefix(ctx, core.ConnectionTableName, "")
	if err != nil {
		return nil, err
	}
	var out []ConnectionRow
	for _, r := range rows {
		c := decodeConnection(r.Partition, r.Row, r.Value)
		if c.ToVertex == vertex {
			out = append(out, c)
		}
	}
	return out, nil
}

// DeleteAllForVertex deletes every connection whose FromVertex or ToVertex is
// vertex — used when disposing a vertex (§8 scenario 5).
func (m *ConnectionManager) DeleteAllForVertex(ctx context.Context, vertex string) (int, error) {
	from, err := m.From(ctx, vertex)
	if err != nil {
		return 0, err
	}
	to, err := m.To(ctx, vertex)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range from {
		if err := m.Delete(ctx, c.FromVertex, c.FromEndpoint, c.ToVertex, c.ToEndpoint); err != nil {
			return n, err
		}
		n++
	}
	for _, c := range to {
		if c.FromVertex == vertex {
			continue // already deleted above
		}
		if err := m.Delete(ctx, c.FromVertex, c.FromEndpoint, c.ToVertex, c.ToEndpoint); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
