// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package metadata

import (
	"context"
	"strconv"
	"strings"

	log "github.com/golang/glog"

	"github.com/westerndigitalcorporation/cra/internal/core"
	"github.com/westerndigitalcorporation/cra/internal/tableservice"
	"github.com/westerndigitalcorporation/cra/pkg/slices"
)

// ShardingInfo describes a sharded vertex group (§3, §4.8).
type ShardingInfo struct {
	BaseName      string
	AllInstances  []string
	AllShards     []int
	AddedShards   []int
	RemovedShards []int
	Locator       string // registry key, resolved via internal/sharding (§3.1, §9)
}

// shardedPartition is the single partition sharded-vertex descriptors live
// in; each base name is a distinct row, so "latest" just means "current
// value of the row" (there is no append-only epoch log in this reference
// implementation, despite §6 keying this table by "(base, epoch)" —
// every write replaces the row wholesale, which is simpler and sufficient
// since ShardedVertexManager callers always supply the complete set).
const shardedPartition = "sharding"

// ShardedVertexManager manages ShardingInfo rows.
type ShardedVertexManager struct {
	ts tableservice.TableService
}

// NewShardedVertexManager returns a manager backed by ts.
func NewShardedVertexManager(ts tableservice.TableService) *ShardedVertexManager {
	return &ShardedVertexManager{ts: ts}
}

func intsToString(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}

func stringToInts(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err == nil {
			out = append(out, n)
		}
	}
	return out
}

func encodeSharding(info ShardingInfo) []byte {
	fields := []string{
		strings.Join(info.AllInstances, ","),
		intsToString(info.AllShards),
		intsToString(info.AddedShards),
		intsToString(info.RemovedShards),
		info.Locator,
	}
	return []byte(strings.Join(fields, "\x00"))
}

func decodeSharding(base string, b []byte) ShardingInfo {
	parts := strings.SplitN(string(b), "\x00", 5)
	for len(parts) < 5 {
		parts = append(parts, "")
	}
	return ShardingInfo{
		BaseName:      base,
		AllInstances:  splitNonEmpty(parts[0]),
		AllShards:     stringToInts(parts[1]),
		AddedShards:   stringToInts(parts[2]),
		RemovedShards: stringToInts(parts[3]),
		Locator:       parts[4],
	}
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// Register creates or replaces the sharding descriptor for base.
//
// Per §9's first Open Question decision, this is called *after* the
// per-shard vertex rows already exist; a failure here does not roll back
// those rows (see internal/metadata's caller, pkg/client's sharded
// instantiate path).
func (m *ShardedVertexManager) Register(ctx context.Context, info ShardingInfo) error {
	if prev, ok, err := m.Latest(ctx, info.BaseName); err == nil && ok {
		if !slices.EqualStrings(prev.AllInstances, info.AllInstances) {
			log.Infof("sharded vertex %s: instance set changed (had an instance added or removed)", info.BaseName)
		}
		for _, inst := range info.AllInstances {
			if !slices.ContainsString(prev.AllInstances, inst) {
				log.Infof("sharded vertex %s: new instance %s joining the shard group", info.BaseName, inst)
			}
		}
	}
	return m.ts.PutRow(ctx, core.ShardedVertexTableName, shardedPartition, info.BaseName, encodeSharding(info))
}

// Latest returns the current sharding descriptor for base.
func (m *ShardedVertexManager) Latest(ctx context.Context, base string) (ShardingInfo, bool, error) {
	v, ok, err := m.ts.GetRow(ctx, core.ShardedVertexTableName, shardedPartition, base)
	if err != nil || !ok {
		return ShardingInfo{}, ok, err
	}
	return decodeSharding(base, v), true, nil
}

// Delete removes the sharding descriptor for base.
func (m *ShardedVertexManager) Delete(ctx context.Context, base string) error {
	return m.ts.DeleteRow(ctx, core.ShardedVertexTableName, shardedPartition, base)
}

// RowsForShardedVertex returns every materialized child-vertex row of base
// (those named "base$N") across all instances, via a prefix scan on the
// vertex table's row key (§4.3).
func (vm *VertexManager) RowsForShardedVertex(ctx context.Context, base string) ([]VertexRow, error) {
	prefix := base + "$"
	rows, err := vm.ts.ScanPrefix(ctx, core.VertexTableName, prefix)
	if err != nil {
		return nil, err
	}
	var out []VertexRow
	for _, r := range rows {
		if r.Partition == definitionPartition {
			continue
		}
		out = append(out, decodeVertex(r.Partition, r.Row, r.Value))
	}
	return out, nil
}

// DiffShards computes which shard indices were added/removed between an old
// and new full shard set, using inline int sets (the membership idea of
// pkg/slices.ContainsString, which is string-only and so is not called here).
func DiffShards(oldShards, newShards []int) (added, removed []int) {
	oldSet := make(map[int]bool, len(oldShards))
	for _, s := range oldShards {
		oldSet[s] = true
	}
	newSet := make(map[int]bool, len(newShards))
	for _, s := range newShards {
		newSet[s] = true
		if !oldSet[s] {
			added = append(added, s)
		}
	}
	for _, s := range oldShards {
		if !newSet[s] {
			removed = append(removed, s)
		}
	}
	return added, removed
}
