// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package tableservice

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3" // sql driver registration
)

// SQLite is an alternate production TableService backend, offered
// alongside Bolt (§4.3) for deployments that prefer a relational store;
// grounded on the same partition/row schema as internal/raftkv/db/db.go,
// translated into SQL rather than boltdb buckets.
type SQLite struct {
	db *sql.DB
	// createTable serializes CREATE TABLE IF NOT EXISTS across goroutines;
	// sqlite's single-writer model means overlapping DDL under load can
	// otherwise return "table is locked".
	mu      sync.Mutex
	created map[string]bool
}

// OpenSQLite opens (creating if absent) a sqlite-backed table service at
// path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers
	return &SQLite{db: db, created: make(map[string]bool)}, nil
}

// Close closes the underlying database file.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func tableIdent(table string) string {
	return "t_" + table
}

func (s *SQLite) ensureTable(ctx context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created[table] {
		return nil
	}
	stmt := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			partition TEXT NOT NULL,
			row TEXT NOT NULL,
			value BLOB,
			PRIMARY KEY (partition, row)
		)`, tableIdent(table))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return err
	}
	idxStmt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_row ON %s(row)`, tableIdent(table), tableIdent(table))
	if _, err := s.db.ExecContext(ctx, idxStmt); err != nil {
		return err
	}
	s.created[table] = true
	return nil
}

// PutRow implements TableService.
func (s *SQLite) PutRow(ctx context.Context, table, partition, row string, value []byte) error {
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}
	stmt := fmt.Sprintf(`INSERT INTO %s(partition, row, value) VALUES (?, ?, ?)
		ON CONFLICT(partition, row) DO UPDATE SET value=excluded.value`, tableIdent(table))
	_, err := s.db.ExecContext(ctx, stmt, partition, row, value)
	return err
}

// GetRow implements TableService.
func (s *SQLite) GetRow(ctx context.Context, table, partition, row string) ([]byte, bool, error) {
	if err := s.ensureTable(ctx, table); err != nil {
		return nil, false, err
	}
	stmt := fmt.Sprintf(`SELECT value FROM %s WHERE partition = ? AND row = ?`, tableIdent(table))
	var value []byte
	err := s.db.QueryRowContext(ctx, stmt, partition, row).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// DeleteRow implements TableService.
func (s *SQLite) DeleteRow(ctx context.Context, table, partition, row string) error {
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE partition = ? AND row = ?`, tableIdent(table))
	_, err := s.db.ExecContext(ctx, stmt, partition, row)
	return err
}

// ScanPartition implements TableService.
func (s *SQLite) ScanPartition(ctx context.Context, table, partition string) ([]Row, error) {
	if err := s.ensureTable(ctx, table); err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf(`SELECT row, value FROM %s WHERE partition = ?`, tableIdent(table))
	rows, err := s.db.QueryContext(ctx, stmt, partition)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var r Row
		r.Partition = partition
		if err := rows.Scan(&r.Row, &r.Value); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ScanPrefix implements TableService.
func (s *SQLite) ScanPrefix(ctx context.Context, table, rowPrefix string) ([]Row, error) {
	if err := s.ensureTable(ctx, table); err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf(`SELECT partition, row, value FROM %s WHERE row LIKE ? ESCAPE '\'`, tableIdent(table))
	rows, err := s.db.QueryContext(ctx, stmt, escapeLike(rowPrefix)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Partition, &r.Row, &r.Value); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '%', '_':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

// DeleteBatch implements TableService. Rows are deleted in batches of at
// most batchSize in the order given; they are not grouped by partition, so
// the first error aborts every remaining batch, not only that partition's.
// That error is returned, and batches already committed stay committed.
func (s *SQLite) DeleteBatch(ctx context.Context, table string, rows []RowKey) error {
	if err := s.ensureTable(ctx, table); err != nil {
		return err
	}
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		stmt := fmt.Sprintf(`DELETE FROM %s WHERE partition = ? AND row = ?`, tableIdent(table))
		var execErr error
		for _, rk := range rows[start:end] {
			if _, execErr = tx.ExecContext(ctx, stmt, rk.Partition, rk.Row); execErr != nil {
				break
			}
		}
		if execErr != nil {
			tx.Rollback()
			return execErr // first error aborts remaining batches (§9)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Reset implements TableService.
func (s *SQLite) Reset(ctx context.Context) error {
	for _, name := range ReservedTables {
		stmt := fmt.Sprintf(`DROP TABLE IF EXISTS %s`, tableIdent(name))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
		s.mu.Lock()
		delete(s.created, name)
		s.mu.Unlock()
	}
	return nil
}
