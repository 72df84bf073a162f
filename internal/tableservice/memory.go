// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package tableservice

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-memory TableService, used by unit tests that don't want
// file IO, in the spirit of the teacher's mem_master_conn.go /
// mem_curator_talker.go / mem_tractserver_talker.go: every remote
// collaborator in that codebase pairs a real implementation with an
// in-memory mock, and this table service follows the same pattern relative
// to the boltdb- and sqlite-backed implementations.
type Memory struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string][]byte // table -> partition -> row -> value
}

// NewMemory returns an empty in-memory TableService.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]map[string]map[string][]byte)}
}

func (m *Memory) partition(table, p string) map[string][]byte {
	t, ok := m.tables[table]
	if !ok {
		t = make(map[string]map[string][]byte)
		m.tables[table] = t
	}
	rows, ok := t[p]
	if !ok {
		rows = make(map[string][]byte)
		t[p] = rows
	}
	return rows
}

// PutRow implements TableService.
func (m *Memory) PutRow(_ context.Context, table, partition, row string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.partition(table, partition)[row] = cp
	return nil
}

// GetRow implements TableService.
func (m *Memory) GetRow(_ context.Context, table, partition, row string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return nil, false, nil
	}
	rows, ok := t[partition]
	if !ok {
		return nil, false, nil
	}
	v, ok := rows[row]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

// DeleteRow implements TableService.
func (m *Memory) DeleteRow(_ context.Context, table, partition, row string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[table]; ok {
		if rows, ok := t[partition]; ok {
			delete(rows, row)
		}
	}
	return nil
}

// ScanPartition implements TableService.
func (m *Memory) ScanPartition(_ context.Context, table, partition string) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Row
	if t, ok := m.tables[table]; ok {
		if rows, ok := t[partition]; ok {
			for r, v := range rows {
				cp := make([]byte, len(v))
				copy(cp, v)
				out = append(out, Row{Partition: partition, Row: r, Value: cp})
			}
		}
	}
	return out, nil
}

// ScanPrefix implements TableService.
func (m *Memory) ScanPrefix(_ context.Context, table, rowPrefix string) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Row
	t, ok := m.tables[table]
	if !ok {
		return nil, nil
	}
	for p, rows := range t {
		for r, v := range rows {
			if strings.HasPrefix(r, rowPrefix) {
				cp := make([]byte, len(v))
				copy(cp, v)
				out = append(out, Row{Partition: p, Row: r, Value: cp})
			}
		}
	}
	return out, nil
}

// DeleteBatch implements TableService.
func (m *Memory) DeleteBatch(ctx context.Context, table string, rows []RowKey) error {
	for _, rk := range rows {
		if err := m.DeleteRow(ctx, table, rk.Partition, rk.Row); err != nil {
			return err
		}
	}
	return nil
}

// Reset implements TableService.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range ReservedTables {
		delete(m.tables, name)
	}
	return nil
}
