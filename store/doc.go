// Package store provides the authoritative grant, evaluation and voting result
// ledger. The default InMemoryStore keeps everything in process local maps
// guarded by a single RWMutex; every read returns copies so callers can never
// mutate internal state or observe a half applied write.
//
// The store is deliberately permissive: it does not validate status
// transitions, does not check that an evaluation's grant exists, and does not
// recompute consensus on insert. Those policies belong to the caller (see the
// dispatch package), which keeps the write path O(1) and lets callers batch.
package store
