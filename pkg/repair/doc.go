/*
Package repair implements the shared auto-repair contract: try to open,
and on a Corruption error, try to acquire the directory's exclusive
non-blocking lock and repair in place before retrying once. If the lock
is held, repair never runs — a corrupt-looking store with other active
readers is left alone rather than risking a repair racing an in-flight
mmap'd read.

	log, err := indexedlog.OpenWithRepair(ctx, dir, name, indexSpecs)

repair.log is capped at 1 MiB (RepairLogCap) and truncated before each
append that would exceed it.
*/
package repair
