// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package metadata implements the five typed managers over the abstract
// table service (§4.3): instances, vertices, endpoints, connections, and
// sharded vertices. Each manager is a thin, invariant-enforcing wrapper,
// grounded on the shape of the teacher's storage-wrapper packages (deleted
// internal/curator/store.go) rather than any surviving file.
package metadata

import (
	"context"
	"strconv"
	"strings"

	"github.com/westerndigitalcorporation/cra/internal/core"
	"github.com/westerndigitalcorporation/cra/internal/tableservice"
)

// instanceRowKey is the empty vertex name marking an instance row in the
// vertex table (§3: "instance row is represented ... as (instance=name,
// vertex='')").
const instanceRowKey = ""

// Instance is a registered worker process.
type Instance struct {
	Name    string
	Address string
	Port    int
}

// InstanceManager manages Instance rows, stored in the vertex table under
// the empty row key within each instance's partition.
type InstanceManager struct {
	ts tableservice.TableService
}

// NewInstanceManager returns a manager backed by ts.
func NewInstanceManager(ts tableservice.TableService) *InstanceManager {
	return &InstanceManager{ts: ts}
}

func encodeInstance(inst Instance) []byte {
	return []byte(inst.Address + "\x00" + strconv.Itoa(inst.Port))
}

func decodeInstance(name string, b []byte) Instance {
	parts := strings.SplitN(string(b), "\x00", 2)
	inst := Instance{Name: name}
	if len(parts) > 0 {
		inst.Address = parts[0]
	}
	if len(parts) > 1 {
		inst.Port, _ = strconv.Atoi(parts[1])
	}
	return inst
}

// Register creates or replaces the instance row for name.
func (m *InstanceManager) Register(ctx context.Context, name, address string, port int) error {
	return m.ts.PutRow(ctx, core.VertexTableName, name, instanceRowKey, encodeInstance(Instance{name, address, port}))
}

// Get returns the instance row for name.
func (m *InstanceManager) Get(ctx context.Context, name string) (Instance, bool, error) {
	v, ok, err := m.ts.GetRow(ctx, core.VertexTableName, name, instanceRowKey)
	if err != nil || !ok {
		return Instance{}, ok, err
	}
	return decodeInstance(name, v), true, nil
}

// Delete removes the instance row for name. It does not cascade to the
// vertices hosted on it; callers wanting that must delete each vertex
// explicitly (mirrors §3's lifecycle note that a dangling vertex row is
// tolerated and treated as a transient condition by the connection engine).
func (m *InstanceManager) Delete(ctx context.Context, name string) error {
	return m.ts.DeleteRow(ctx, core.VertexTableName, name, instanceRowKey)
}

// All returns every registered instance. It's a best-effort, eventually
// consistent enumeration: since the abstract TableService has no "list
// partitions" primitive, this scans the vertex table for rows whose row key
// is the empty instance-row marker (every string has "" as a prefix, so
// ScanPrefix(table, "") walks the whole table; only rows with an exactly
// empty Row are instance rows).
func (m *InstanceManager) All(ctx context.Context) ([]Instance, error) {
	rows, err := m.ts.ScanPrefix(ctx, core.VertexTableName, "")
	if err != nil {
		return nil, err
	}
	var out []Instance
	for _, r := range rows {
		if r.Row == instanceRowKey {
			out = append(out, decodeInstance(r.Partition, r.Value))
		}
	}
	return out, nil
}
