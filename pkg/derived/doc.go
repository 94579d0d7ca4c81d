// Package derived orchestrates derivation of pure functions of a bonsai
// changeset and its parents' derived data (fsnodes, unodes, blame,
// changeset info, ...): topological ordering by generation number,
// batched traversal over a bounded worker pool, a short-TTL lease
// preventing duplicate concurrent derivation of the same artifact, and
// the simple/backfill write modes described in spec.md §4.6.
package derived
