// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build tools

// Package main records build-time tools in go.mod so their versions match
// the libraries the tests link against.
//
// The integration suites run with the pinned Ginkgo CLI:
//
//	go run github.com/onsi/ginkgo/v2/ginkgo -tags integration ./test/integration ./internal/store
package main

import (
	_ "github.com/onsi/ginkgo/v2/ginkgo"
	_ "github.com/stretchr/testify/mock"
)
