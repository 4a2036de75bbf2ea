//go:build tools
// +build tools

// Package tools documents development tool dependencies for the members console.
// These tools are run via `go run`/`go install` and are not tracked in go.mod
// since they are development tools, not runtime dependencies.
package tools

// Development tools:
//
// mockgen - Generates the gomock doubles in internal/mocks
//   Run: go generate ./internal/mocks
//   Version: v0.6.0 (matches go.uber.org/mock in go.mod)
//   Docs: https://github.com/uber-go/mock
//
// Air - Live reload while editing handlers and web/templates
//   Install: go install github.com/air-verse/air@v1.63.0
//   Run: DEV=true AUTH_MODE=mock air -- ./cmd/members-console
//   Docs: https://github.com/air-verse/air
