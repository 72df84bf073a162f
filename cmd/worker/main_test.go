// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectIPv4FindsANonLoopbackAddress(t *testing.T) {
	addr, err := detectIPv4()
	require.NoError(t, err)
	require.NotEmpty(t, addr)
	require.NotEqual(t, "127.0.0.1", addr)
}
