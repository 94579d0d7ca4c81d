// Package repo is the composition root: it opens and wires together a
// single repository's blobstore, tiered cache, bonsai<->hg mapping,
// segmented changelog and derived-data orchestrator behind one handle,
// and publishes operational events for each to pkg/events.
package repo
