// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package sharding

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/westerndigitalcorporation/cra/internal/core"
)

func TestFullMeshArity(t *testing.T) {
	edges, code := FullMesh("src", 3, []string{"o0", "o1"}, "snk", 2, []string{"i0", "i1", "i2"})
	require.Equal(t, core.Success, code)
	require.Len(t, edges, 6)
}

func TestFullMeshArityMismatch(t *testing.T) {
	edges, code := FullMesh("src", 3, []string{"o0"}, "snk", 3, []string{"i0", "i1", "i2"})
	require.Equal(t, core.VerticesEndpointsNotMatched, code)
	require.Nil(t, edges)
}

func TestModLocatorDeterministic(t *testing.T) {
	l, ok := LookupLocator("mod")
	require.True(t, ok)
	require.Equal(t, l("key-a", 4), l("key-a", 4))
}

func TestFanoutPropagatesFirstError(t *testing.T) {
	want := errors.New("boom")
	err := Fanout(4, func(i int) error {
		if i == 2 {
			return want
		}
		return nil
	})
	require.Equal(t, want, err)
}
