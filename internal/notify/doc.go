// Package notify routes assertion payloads from tests to integrations.
//
// Each declared alias that a test binds to gets exactly one Endpoint. An
// Endpoint owns an unbounded FIFO and a single delivery goroutine, so the
// handlers of one integration never run concurrently and a slow integration
// only delays its own queue.
//
// Bind validates every alias before creating anything. Notify enqueues a
// payload on each endpoint of a test. Close drains the queues and calls
// OnCompleted once per integration.
package notify
