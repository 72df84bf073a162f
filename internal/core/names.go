// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package core

import (
	"crypto/rand"
	"regexp"
	"strconv"
	"strings"
)

// vertexDefNameRe matches valid vertex-definition names: DNS-label-like,
// 3-63 characters starting and ending with an alphanumeric, or the literal
// "$root".
var vertexDefNameRe = regexp.MustCompile(`^([a-z0-9]([-a-z0-9]){1,61}[a-z0-9]|\$root)$`)

// IsValidDefinitionName reports whether name is a legal vertex-definition
// name (§8 boundary cases).
func IsValidDefinitionName(name string) bool {
	return vertexDefNameRe.MatchString(name)
}

// shardSeparator joins a sharded vertex's base name to its shard index.
const shardSeparator = "$"

// ShardVertexName returns the concrete vertex name for shard index of base.
func ShardVertexName(base string, index int) string {
	return base + shardSeparator + strconv.Itoa(index)
}

// ShardIndexOf extracts the shard index from a concrete sharded-vertex
// name produced by ShardVertexName. ok is false for an unsharded name.
func ShardIndexOf(name string) (index int, ok bool) {
	i := strings.LastIndex(name, shardSeparator)
	if i < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(name[i+len(shardSeparator):])
	if err != nil {
		return 0, false
	}
	return n, true
}

const ephemeralNameLen = 16
const ephemeralAlphabet = "abcdefghijklmnopqrstuvwxyz"

// NewEphemeralInstanceName returns a 16-character lowercase random string,
// suitable for a detached vertex's ephemeral instance name (§9). It reads
// from crypto/rand directly on every call rather than sharing a
// non-synchronized math/rand source across goroutines.
func NewEphemeralInstanceName() (string, error) {
	buf := make([]byte, ephemeralNameLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, ephemeralNameLen)
	for i, b := range buf {
		out[i] = ephemeralAlphabet[int(b)%len(ephemeralAlphabet)]
	}
	return string(out), nil
}
