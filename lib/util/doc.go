// Package util provides concurrency utilities shared by the client core.
//
// The package contains:
//   - mpsc: A bounded, lock-free Multi-Producer Single-Consumer (MPSC) queue that hands
//     items to its consumer through a channel, so it can be combined with other event
//     sources in a select statement
//   - goroutine: Identification of the calling goroutine, used to detect re-entrant calls
//     from inside an event loop
//
// The MPSC queue is the hand-off between application goroutines and the reactor:
// producers never wait for each other, and the consumer is guaranteed to observe every
// item that was pushed successfully.
package util
