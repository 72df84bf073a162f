// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func storeFlags(t *testing.T) []string {
	return []string{"--store", "memory:", "--artifacts", t.TempDir()}
}

func TestBeforeCommandRequiresStoreFlag(t *testing.T) {
	c := newCraCli()
	require.Error(t, c.run([]string{"cracli", "define", "--def", "echo-def", "--factory", "echo"}))
}

func TestDefineInstantiateAndResetRoundTrip(t *testing.T) {
	c := newCraCli()
	args := storeFlags(t)
	require.NoError(t, c.run(append([]string{"cracli"}, append(args, "define", "--def", "echo-def", "--factory", "echo")...)))
	require.NoError(t, c.run(append([]string{"cracli"}, append(args, "instantiate", "--instance", "w1", "--vertex", "v1", "--def", "echo-def")...)))
	require.NoError(t, c.run(append([]string{"cracli"}, append(args, "reset")...)))
}

func TestBeforeCommandReusesCachedClientForSameStore(t *testing.T) {
	c := newCraCli()
	args := storeFlags(t)
	require.NoError(t, c.run(append([]string{"cracli"}, append(args, "reset")...)))
	first := c.clt
	require.NoError(t, c.run(append([]string{"cracli"}, append(args, "reset")...)))
	require.Same(t, first, c.clt)
}

func TestConnectAndDisconnectRequireFourArgs(t *testing.T) {
	c := newCraCli()
	args := storeFlags(t)
	require.NoError(t, c.run(append([]string{"cracli"}, append(args, "connect", "only-one-arg")...)))
	require.NoError(t, c.run(append([]string{"cracli"}, append(args, "disconnect", "only-one-arg")...)))
}

func TestFailureConfigGetRequiresOneArg(t *testing.T) {
	c := newCraCli()
	args := storeFlags(t)
	require.NoError(t, c.run(append([]string{"cracli"}, append(args, "fget")...)))
}

func TestFailureConfigSetRequiresEvenKeyValueArgs(t *testing.T) {
	c := newCraCli()
	args := storeFlags(t)
	require.NoError(t, c.run(append([]string{"cracli"}, append(args, "fset", "127.0.0.1:9001", "lonelyKey")...)))
}
