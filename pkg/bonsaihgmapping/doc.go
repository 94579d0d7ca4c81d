/*
Package bonsaihgmapping stores the per-repo bijection between bonsai
changeset ids and Mercurial changeset ids. SQLMapping is the source of
truth (sqlite via database/sql, schema embedded from schema.sql);
CachedMapping wraps it with package cache for the hot path, tagging
cache keys by lookup direction so the two never collide.

Add is insert-only: re-adding an identical entry is idempotent, and
adding a conflicting entry under either direction fails with
errkind.Conflict — never a silent overwrite, since the mapping must
stay a true bijection per repo.
*/
package bonsaihgmapping
