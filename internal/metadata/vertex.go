// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package metadata

import (
	"context"
	"strings"

	"github.com/westerndigitalcorporation/cra/internal/tableservice"

	"github.com/westerndigitalcorporation/cra/internal/core"
)

// VertexRow is a materialized vertex: which instance hosts it, which
// definition it was created from, and the serialized parameters it was
// initialized with.
type VertexRow struct {
	Instance   string
	VertexName string
	Definition string
	Params     []byte
}

// definitionPartition holds "template" rows with an empty instance: the
// definition's factory key, keyed by definition name (§3, "the template row
// with empty instance").
const definitionPartition = ""

// VertexManager manages VertexRow entries and vertex-definition rows.
type VertexManager struct {
	ts tableservice.TableService
}

// NewVertexManager returns a manager backed by ts.
func NewVertexManager(ts tableservice.TableService) *VertexManager {
	return &VertexManager{ts: ts}
}

// VertexDefinition is a registered vertex type: a factory-registry key
// (§3.1) plus whether it produces sharded vertices.
type VertexDefinition struct {
	Name       string
	FactoryKey string
	IsSharded  bool
}

func encodeDefinition(d VertexDefinition) []byte {
	sharded := "0"
	if d.IsSharded {
		sharded = "1"
	}
	return []byte(d.FactoryKey + "\x00" + sharded)
}

func decodeDefinition(name string, b []byte) VertexDefinition {
	parts := strings.SplitN(string(b), "\x00", 2)
	d := VertexDefinition{Name: name}
	if len(parts) > 0 {
		d.FactoryKey = parts[0]
	}
	if len(parts) > 1 {
		d.IsSharded = parts[1] == "1"
	}
	return d
}

// Define registers a vertex definition. Redefining an existing name with
// different content returns core.ErrAlreadyExists (§6.1).
func (m *VertexManager) Define(ctx context.Context, def VertexDefinition) error {
	existing, ok, err := m.ts.GetRow(ctx, core.VertexTableName, definitionPartition, def.Name)
	if err != nil {
		return err
	}
	encoded := encodeDefinition(def)
	if ok && string(existing) != string(encoded) {
		return core.ErrAlreadyExists.AsError()
	}
	return m.ts.PutRow(ctx, core.VertexTableName, definitionPartition, def.Name, encoded)
}

// Definition returns the registered definition named name.
func (m *VertexManager) Definition(ctx context.Context, name string) (VertexDefinition, bool, error) {
	v, ok, err := m.ts.GetRow(ctx, core.VertexTableName, definitionPartition, name)
	if err != nil || !ok {
		return VertexDefinition{}, ok, err
	}
	return decodeDefinition(name, v), true, nil
}

func encodeVertex(v VertexRow) []byte {
	return []byte(v.Definition + "\x00" + string(v.Params))
}

func decodeVertex(instance, name string, b []byte) VertexRow {
	parts := strings.SplitN(string(b), "\x00", 2)
	v := VertexRow{Instance: instance, VertexName: name}
	if len(parts) > 0 {
		v.Definition = parts[0]
	}
	if len(parts) > 1 {
		v.Params = []byte(parts[1])
	}
	return v
}

// Put creates or replaces a materialized vertex row.
func (m *VertexManager) Put(ctx context.Context, v VertexRow) error {
	return m.ts.PutRow(ctx, core.VertexTableName, v.Instance, v.VertexName, encodeVertex(v))
}

// Get returns the vertex row for (instance, vertexName).
func (m *VertexManager) Get(ctx context.Context, instance, vertexName string) (VertexRow, bool, error) {
	v, ok, err := m.ts.GetRow(ctx, core.VertexTableName, instance, vertexName)
	if err != nil || !ok {
		return VertexRow{}, ok, err
	}
	return decodeVertex(instance, vertexName, v), true, nil
}

// Delete removes the vertex row for (instance, vertexName).
func (m *VertexManager) Delete(ctx context.Context, instance, vertexName string) error {
	return m.ts.DeleteRow(ctx, core.VertexTableName, instance, vertexName)
}

// AllForInstance returns every materialized vertex hosted on instance
// (excluding the instance row itself).
func (m *VertexManager) AllForInstance(ctx context.Context, instance string) ([]VertexRow, error) {
	rows, err := m.ts.ScanPartition(ctx, core.VertexTableName, instance)
	if err != nil {
		return nil, err
	}
	var out []VertexRow
	for _, r := range rows {
		if r.Row == instanceRowKey {
			continue
		}
		out = append(out, decodeVertex(instance, r.Row, r.Value))
	}
	return out, nil
}

// RowForVertex returns any instance's row for vertexName — the first found
// by an eventually-consistent full-table scan, tie-broken arbitrarily since
// the table service does not expose insertion order (§4.3 documents
// "earliest insertion order" as the aspirational tie-break; a real
// production table service with per-row timestamps could restore that, this
// reference implementation does not track it).
func (m *VertexManager) RowForVertex(ctx context.Context, vertexName string) (VertexRow, bool, error) {
	rows, err := m.ts.ScanPrefix(ctx, core.VertexTableName, vertexName)
	if err != nil {
		return VertexRow{}, false, err
	}
	for _, r := range rows {
		if r.Row == vertexName && r.Partition != definitionPartition {
			return decodeVertex(r.Partition, r.Row, r.Value), true, nil
		}
	}
	return VertexRow{}, false, nil
}

// RowForActiveVertex is like RowForVertex but skips rows hosted on an
// instance with no known address (§4.3).
func (m *VertexManager) RowForActiveVertex(ctx context.Context, instances *InstanceManager, vertexName string) (VertexRow, bool, error) {
	rows, err := m.ts.ScanPrefix(ctx, core.VertexTableName, vertexName)
	if err != nil {
		return VertexRow{}, false, err
	}
	for _, r := range rows {
		if r.Row != vertexName || r.Partition == definitionPartition {
			continue
		}
		inst, ok, err := instances.Get(ctx, r.Partition)
		if err != nil {
			return VertexRow{}, false, err
		}
		if ok && inst.Address != "" {
			return decodeVertex(r.Partition, r.Row, r.Value), true, nil
		}
	}
	return VertexRow{}, false, nil
}
