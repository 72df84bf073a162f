// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package tableservice defines the abstract persistent key-value store that
// backs the runtime's five metadata tables (§4.3, §6), plus reference
// implementations: an in-memory one for tests and a boltdb-backed one and a
// sqlite-backed one for production use.
//
// Every table is a two-level namespace: a partition key and a row key within
// it. Single-row operations (Put/Get/Delete) are strongly consistent. Scans
// (ScanPartition/ScanPrefix) may be eventually consistent with concurrent
// writes; callers must tolerate seeing a slightly stale snapshot.
package tableservice

import (
	"context"

	"github.com/westerndigitalcorporation/cra/internal/core"
)

// Row is one persisted (partition, row, value) triple.
type Row struct {
	Partition string
	Row       string
	Value     []byte
}

// TableService is the abstraction every metadata manager (§4.3) is built on.
type TableService interface {
	// PutRow inserts or replaces the row (partition, row) with value.
	PutRow(ctx context.Context, table, partition, row string, value []byte) error
	// GetRow returns the value at (partition, row). ok is false if absent.
	GetRow(ctx context.Context, table, partition, row string) (value []byte, ok bool, err error)
	// DeleteRow removes (partition, row), if present. Deleting an absent row
	// is not an error.
	DeleteRow(ctx context.Context, table, partition, row string) error
	// ScanPartition returns every row in partition, in unspecified order.
	ScanPartition(ctx context.Context, table, partition string) ([]Row, error)
	// ScanPrefix returns every row across all partitions whose row key has
	// the given prefix (used for sharded-vertex-child lookups, §4.3).
	ScanPrefix(ctx context.Context, table, rowPrefix string) ([]Row, error)
	// DeleteBatch deletes every (partition, row) pair named in rows. Rows
	// are grouped by partition and deleted in batches of at most
	// batchSize per partition; the first error aborts that partition's
	// remaining batches but does not roll back batches already committed
	// (§9, "batch-delete overflow" open question).
	DeleteBatch(ctx context.Context, table string, rows []RowKey) error
	// Reset deletes every row in every one of the runtime's reserved
	// tables (§6). Intended for test bring-up and the client library's
	// reset() call.
	Reset(ctx context.Context) error
}

// RowKey names a row without its value, for batch deletes.
type RowKey struct {
	Partition string
	Row       string
}

// batchSize bounds how many deletes are grouped per underlying transaction,
// grounded on internal/master's batch-delete fan-in of 100 rows.
const batchSize = 100

// ReservedTables lists the five tables Reset must clear.
var ReservedTables = []string{
	core.ConnectionTableName,
	core.VertexTableName,
	core.EndpointTableName,
	core.ShardedVertexTableName,
	core.ArtifactContainerName,
}
