// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package core

import (
	"crypto/rand"
	"encoding/base64"
	"strconv"
	"sync/atomic"
)

var (
	processIDPrefix = makeIDPrefix()
	nextRequestID   uint64
)

func makeIDPrefix() string {
	buf := make([]byte, 15)
	rand.Read(buf) //nolint:errcheck // crypto/rand.Read never returns a short read or error on Linux/Darwin/Windows
	return base64.StdEncoding.EncodeToString(buf)
}

// GenRequestID returns a unique string usable as a control-message request
// id (for logging and future cancellation support). 120 random bits identify
// the process; a monotonic counter distinguishes calls within it.
func GenRequestID() string {
	id := atomic.AddUint64(&nextRequestID, 1)
	return processIDPrefix + strconv.FormatUint(id, 36)
}
