// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package concurrency provides the lock-free building blocks of the
// archive duty cycles: a single-producer single-consumer ring buffer
// for cross-thread handoff, an adaptive backoff idle strategy and the
// agent runner that drives duty-cycled components on their own
// goroutines.
package concurrency
