// Package core provides the foundational domain types and interfaces used by
// grantmesh. It defines:
//
//   - Grants (funding requests moving through a review lifecycle)
//   - Evaluations (one evaluator agent's scored assessment of a grant)
//   - Voting results (the derived consensus snapshot for a grant)
//   - Agent records (liveness and identity of connected evaluators)
//   - The error taxonomy shared by the store, registry, dispatcher and client
//
// Implementation concerns (storage, consensus math, transports) live in other
// packages; core only exposes small interfaces so alternative backends can be
// plugged in.
package core
