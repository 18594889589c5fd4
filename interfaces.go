package flightreader

// Projection is an out-of-process view of the snapshot, normally the
// memory-mapped region. MarkInvalid is called before a batch is applied and
// Publish after DataValid has been restored.
type Projection interface {
	MarkInvalid()
	Publish(s *Snapshot) error
}

// SnapshotSource hands out point-in-time copies of the snapshot.
// CopySnapshot must only hold its lock for the duration of the copy.
type SnapshotSource interface {
	CopySnapshot(dst *Snapshot)
}
