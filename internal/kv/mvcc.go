package kv

// isVisible reports whether a record created at createdGen and
// (optionally) deleted at deletedGen is visible to a reader pinned at
// snapshotGen, per spec.md §4.6: creation_generation <= snap_gen and
// not shadowed by a later-but-still-visible tombstone.
func isVisible(createdGen uint64, tombstone bool, snapshotGen uint64) bool {
	if createdGen > snapshotGen {
		return false
	}
	return !tombstone
}
