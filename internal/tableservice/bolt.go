// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package tableservice

import (
	"bytes"
	"context"
	"os"

	"github.com/boltdb/bolt"
	log "github.com/golang/glog"
)

// separator joins partition and row into a single bolt key so ScanPrefix
// (which must range across partitions) can use a single cursor over one
// bucket, the same tradeoff internal/raftkv/db/db.go's ListKeys makes for
// prefix scans over its single "data" bucket.
const separator = "\x00"

// Bolt is a boltdb-backed TableService, grounded on
// internal/raftkv/db/db.go's bucket-per-table, cursor-prefix-scan shape:
// each table name becomes a bolt bucket, and partition+row become a single
// composite key within it.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens (creating if absent) a boltdb-backed table service at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, os.FileMode(0600), nil)
	if err != nil {
		return nil, err
	}
	return &Bolt{db: db}, nil
}

// Close closes the underlying database file.
func (b *Bolt) Close() error {
	return b.db.Close()
}

func compositeKey(partition, row string) []byte {
	return []byte(partition + separator + row)
}

func splitCompositeKey(k []byte) (partition, row string) {
	s := string(k)
	i := bytes.IndexByte(k, 0)
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}

func (b *Bolt) bucket(tx *bolt.Tx, table string, create bool) (*bolt.Bucket, error) {
	if create {
		return tx.CreateBucketIfNotExists([]byte(table))
	}
	return tx.Bucket([]byte(table)), nil
}

// PutRow implements TableService.
func (b *Bolt) PutRow(_ context.Context, table, partition, row string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk, err := b.bucket(tx, table, true)
		if err != nil {
			return err
		}
		return bk.Put(compositeKey(partition, row), value)
	})
}

// GetRow implements TableService.
func (b *Bolt) GetRow(_ context.Context, table, partition, row string) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bk, err := b.bucket(tx, table, false)
		if err != nil || bk == nil {
			return err
		}
		v := bk.Get(compositeKey(partition, row))
		if v == nil {
			return nil
		}
		found = true
		value = append([]byte(nil), v...)
		return nil
	})
	return value, found, err
}

// DeleteRow implements TableService.
func (b *Bolt) DeleteRow(_ context.Context, table, partition, row string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk, err := b.bucket(tx, table, false)
		if err != nil || bk == nil {
			return err
		}
		return bk.Delete(compositeKey(partition, row))
	})
}

// ScanPartition implements TableService.
func (b *Bolt) ScanPartition(_ context.Context, table, partition string) ([]Row, error) {
	var out []Row
	err := b.db.View(func(tx *bolt.Tx) error {
		bk, err := b.bucket(tx, table, false)
		if err != nil || bk == nil {
			return err
		}
		prefix := []byte(partition + separator)
		c := bk.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			_, row := splitCompositeKey(k)
			out = append(out, Row{Partition: partition, Row: row, Value: append([]byte(nil), v...)})
		}
		return nil
	})
	return out, err
}

// ScanPrefix implements TableService. Since the composite key is
// partition+separator+row, a row-key prefix scan must walk every partition;
// this mirrors internal/raftkv/db/db.go's own limitation that ListKeys only
// prefixes the whole key, so cra's sharded-vertex-child scans store the
// shard base name as a row-key prefix, not embedded after a partition.
func (b *Bolt) ScanPrefix(_ context.Context, table, rowPrefix string) ([]Row, error) {
	var out []Row
	err := b.db.View(func(tx *bolt.Tx) error {
		bk, err := b.bucket(tx, table, false)
		if err != nil || bk == nil {
			return err
		}
		c := bk.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			partition, row := splitCompositeKey(k)
			if bytesHasPrefixString(row, rowPrefix) {
				out = append(out, Row{Partition: partition, Row: row, Value: append([]byte(nil), v...)})
			}
		}
		return nil
	})
	return out, err
}

func bytesHasPrefixString(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// DeleteBatch implements TableService, grouping deletes per partition into
// batches of at most batchSize keys per underlying transaction (§9).
func (b *Bolt) DeleteBatch(_ context.Context, table string, rows []RowKey) error {
	byPartition := make(map[string][]string)
	for _, rk := range rows {
		byPartition[rk.Partition] = append(byPartition[rk.Partition], rk.Row)
	}
	var firstErr error
	for partition, rowKeys := range byPartition {
		for start := 0; start < len(rowKeys); start += batchSize {
			end := start + batchSize
			if end > len(rowKeys) {
				end = len(rowKeys)
			}
			batch := rowKeys[start:end]
			err := b.db.Update(func(tx *bolt.Tx) error {
				bk, err := b.bucket(tx, table, false)
				if err != nil || bk == nil {
					return err
				}
				for _, row := range batch {
					if err := bk.Delete(compositeKey(partition, row)); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				log.Errorf("tableservice: batch delete aborted for partition %q after %d/%d rows: %v",
					partition, start, len(rowKeys), err)
				if firstErr == nil {
					firstErr = err
				}
				break
			}
		}
	}
	return firstErr
}

// Reset implements TableService.
func (b *Bolt) Reset(_ context.Context) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		for _, name := range ReservedTables {
			if err := tx.DeleteBucket([]byte(name)); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
		}
		return nil
	})
}
