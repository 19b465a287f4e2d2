// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (errors.go, connection.go, pubsub.go, lifecycle.go)
// with shared types and cross-cutting interfaces. No implementation code beyond small value types.
// Prevents circular imports by keeping interfaces on the consumer side.
package domain
