// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package tableservice

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/westerndigitalcorporation/cra/pkg/testutil"
)

func implementations(t *testing.T) map[string]TableService {
	dir, err := ioutil.TempDir(testutil.TempDir(), "tableservice")
	require.NoError(t, err)
	b, err := OpenBolt(filepath.Join(dir, "bolt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	sq, err := OpenSQLite(filepath.Join(dir, "sqlite.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	return map[string]TableService{
		"memory": NewMemory(),
		"bolt":   b,
		"sqlite": sq,
	}
}

func TestPutGetDeleteRow(t *testing.T) {
	ctx := context.Background()
	for name, ts := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, ts.PutRow(ctx, "cravertextable", "workerA", "v1", []byte("hello")))

			v, ok, err := ts.GetRow(ctx, "cravertextable", "workerA", "v1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, []byte("hello"), v)

			_, ok, err = ts.GetRow(ctx, "cravertextable", "workerA", "missing")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, ts.DeleteRow(ctx, "cravertextable", "workerA", "v1"))
			_, ok, err = ts.GetRow(ctx, "cravertextable", "workerA", "v1")
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestScanPartition(t *testing.T) {
	ctx := context.Background()
	for name, ts := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, ts.PutRow(ctx, "cravertextable", "workerA", "v1", []byte("1")))
			require.NoError(t, ts.PutRow(ctx, "cravertextable", "workerA", "v2", []byte("2")))
			require.NoError(t, ts.PutRow(ctx, "cravertextable", "workerB", "v3", []byte("3")))

			rows, err := ts.ScanPartition(ctx, "cravertextable", "workerA")
			require.NoError(t, err)
			require.Len(t, rows, 2)
		})
	}
}

func TestScanPrefix(t *testing.T) {
	ctx := context.Background()
	for name, ts := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, ts.PutRow(ctx, "crashardedvertextable", "meta", "src$0", []byte("a")))
			require.NoError(t, ts.PutRow(ctx, "crashardedvertextable", "meta", "src$1", []byte("b")))
			require.NoError(t, ts.PutRow(ctx, "crashardedvertextable", "meta", "other", []byte("c")))

			rows, err := ts.ScanPrefix(ctx, "crashardedvertextable", "src$")
			require.NoError(t, err)
			require.Len(t, rows, 2)
		})
	}
}

func TestResetClearsReservedTables(t *testing.T) {
	ctx := context.Background()
	for name, ts := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			for _, table := range ReservedTables {
				require.NoError(t, ts.PutRow(ctx, table, "p", "r", []byte("x")))
			}
			require.NoError(t, ts.Reset(ctx))
			for _, table := range ReservedTables {
				_, ok, err := ts.GetRow(ctx, table, "p", "r")
				require.NoError(t, err)
				require.False(t, ok)
			}
		})
	}
}

func TestDeleteBatch(t *testing.T) {
	ctx := context.Background()
	for name, ts := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			var keys []RowKey
			for i := 0; i < 250; i++ {
				row := "r" + string(rune('a'+i%26)) + string(rune('0'+i%10))
				require.NoError(t, ts.PutRow(ctx, "craendpointtable", "v", row, []byte("x")))
				keys = append(keys, RowKey{Partition: "v", Row: row})
			}
			require.NoError(t, ts.DeleteBatch(ctx, "craendpointtable", keys))
			rows, err := ts.ScanPartition(ctx, "craendpointtable", "v")
			require.NoError(t, err)
			require.Empty(t, rows)
		})
	}
}
