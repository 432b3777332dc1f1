// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package app

import (
	"fmt"
	"runtime"
)

// Build information, injected via ldflags:
//
//	-X github.com/sarahliz0715/Tandril-sub000/internal/app.Version=v1.2.3
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// PrintVersion prints version information to stdout.
func PrintVersion() {
	fmt.Printf("tandril %s\n", Version)
	fmt.Printf("  commit:     %s\n", Commit)
	fmt.Printf("  build time: %s\n", BuildTime)
	fmt.Printf("  go version: %s\n", runtime.Version())
	fmt.Printf("  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
