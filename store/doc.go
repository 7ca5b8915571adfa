// Package store provides implementations of core.Store: a concurrency-safe
// in-memory store for tests and demos, and a durable sqlite-backed store for
// single-node deployments. Both serialize message sequence assignment per
// conversation so concurrent appends never produce duplicate sequences.
package store
