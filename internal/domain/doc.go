// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (identity.go, remote.go, effect.go, errors.go, etc.)
// with shared types and cross-cutting interfaces. No I/O here - just contracts and small value helpers.
// Prevents circular imports by keeping interfaces on the consumer side.
package domain
