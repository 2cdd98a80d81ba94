// Package engine implements the action scheduler.
//
// ARCHITECTURE:
//
// Lanes:
// A Lane is a FIFO of submitted actions with a concurrency mode. The scheduler
// owns one concurrent lane shared by all generic actions and holds one serial
// lane per managed resource, attached by the registry at start.
//
// Dispatch:
// Lanes start worker goroutines themselves. Submitting never blocks; it only
// queues and, if the lane has capacity and is not suspended, dispatches.
//   - serial lanes run one action at a time, strictly in submission order
//   - the concurrent lane runs actions in parallel, up to an optional limit
//
// Suspension:
// Suspending stops new dispatch. Running actions are never interrupted.
// Resuming releases queued actions; serial lanes keep strict FIFO order.
//
// Proxies:
// Every submission returns a Proxy whose State only moves forward:
//
//	queued -> executing -> finished | failed | cancelled
//	queued -> cancelled
//
// Cancellation is cooperative. A queued proxy is cancelled immediately; an
// executing action sees its context cancelled and decides how to stop.
package engine
