// Package store keeps an in-memory history of notifications, keyed by test
// name, with TTL eviction.
package store
