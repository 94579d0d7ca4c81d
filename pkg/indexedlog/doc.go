// Package indexedlog is the append-only log plus radix-tree secondary
// index substrate underlying the segmented changelog's IdMap and IdDag.
//
// A log directory holds: log, the raw record stream; meta, a small file
// atomically replaced on every commit naming the committed length of
// log and of each index-<name> file; one index-<name> file per
// secondary index; and repair.log, a capped trail of past repairs.
//
// Readers mmap log and every index file and never take a lock: bytes
// past the length recorded in meta are provisional and ignored. Writers
// serialize through a single exclusive flock per directory, append past
// the committed length, fsync, and only then atomically rename a new
// meta into place — the rename is the only visible commit point.
package indexedlog
