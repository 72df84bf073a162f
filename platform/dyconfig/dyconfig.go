// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package dyconfig

type registerKey struct {
}

// RegisterKey is the handle Register returns. This package has no function
// that takes it back.
type RegisterKey *registerKey

// Register accepts a config key, a flag for including the service name in
// that key, a config struct, and a callback taking that struct type.
//
// In this package Register is a stub: it returns a fresh RegisterKey and a
// nil error. It never reads config storage, never calls the callback, and
// starts no watcher, so a registered config is never reloaded.
func Register(key string, serviceInKey bool, defaults interface{}, callback interface{}) (RegisterKey, error) {
	return new(registerKey), nil
}
