// Package blackboard implements the shared store of objects, facts, and
// hypotheses that the scheduler dispatches work against.
//
// The store holds three tables:
//
//   - objects: opaque, content-addressed byte buffers.
//   - facts: typed, immutable records asserted by workers.
//   - hyps: facts marked tainted, pending promotion.
//
// Every mutation is a short, non-blocking critical section. A single
// sync.RWMutex guards the whole store: table content (id assignment,
// record storage) and the parent/child relationship graph that spans all
// three tables share that one lock, so relationship edges are never
// observed half-written. There are no per-table locks and no separate
// relationship-graph lock. After a mutation commits, the Store publishes a
// PostEvent describing it; the scheduler is the sole consumer of that
// channel.
package blackboard
