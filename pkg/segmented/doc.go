// Package segmented implements the persistent segmented commit-graph
// index (C5): the IdMap (Vertex<->Id bijection), the IdDag (segment
// index over Ids supporting ancestry queries in O(segments touched)),
// and the SegmentedChangelogVersion pointer that names which on-disk
// generation of each a reader should trust.
//
// IdMap and IdDag are both backed by pkg/indexedlog.Log; the version
// pointer lives in SQL and, across a manager fleet, is kept consistent
// via a dedicated raft group that replicates only the pointer; segment
// data is not carried in the raft log.
package segmented
