// Package execution runs a tree of test declarations with configurable
// parallelism, thread affinity, timeouts and cancellation.
//
// The main components are:
//   - WorkUnit: a schedulable leaf test, composite suite, or a suite's one-time teardown
//   - WorkQueue: a blocking FIFO of ready units with Paused, Running and Stopped states
//   - Worker: a goroutine bound to one queue and one affinity class
//   - Shift: a mutually exclusive phase grouping queues and their workers
//   - ParallelDispatcher: routes units to queues and sequences shifts
//   - SimpleDispatcher: runs the whole tree on a single goroutine
//   - TestRunner: builds the run state, starts a dispatcher and waits for the root result
//
// A composite never blocks a worker while its children run. The last child
// to complete dispatches the composite's one-time teardown, which in turn
// completes the composite and reports upward to its own parent.
package execution
