// Copyright 2026 The Labgate Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !cgo

package main

// Without cgo the exported functions in main.go drop out of the build
// and take func main with them. This stub keeps the package linkable so
// plain `go build ./...` works; the real artifact is the c-shared build,
// which compiles main.go instead.
func main() {}
