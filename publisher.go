package flightreader

import (
	"sync"
	"time"

	"github.com/jd3nn1s/flightreader/message"
	log "github.com/sirupsen/logrus"
)

var _ SnapshotSource = (*Publisher)(nil)

// Publisher owns the snapshot and is the only writer of it.
type Publisher struct {
	mu         sync.Mutex
	snap       Snapshot
	table      DispatchTable
	projection Projection

	start time.Time
	now   func() time.Time

	batches uint64
	applied uint64
	ignored uint64
}

// NewPublisher creates a publisher with a default-initialized snapshot.
// projection may be nil when no memory-mapped region is available.
func NewPublisher(projection Projection) *Publisher {
	p := &Publisher{
		table:      NewDispatchTable(),
		projection: projection,
		now:        time.Now,
	}
	p.snap.Reset()
	p.start = p.now()
	return p
}

// ApplyBatch applies the messages of one tick. DataValid is cleared for the
// whole batch and set again once every message has been applied and the
// update counter incremented.
func (p *Publisher) ApplyBatch(msgs []message.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.snap.DataValid = 0
	if p.projection != nil {
		p.projection.MarkInvalid()
	}

	for _, m := range msgs {
		if p.table.Apply(&p.snap, m) {
			p.applied++
		} else {
			p.ignored++
		}
	}

	p.snap.TimestampUS = uint64(p.now().Sub(p.start).Microseconds())
	p.snap.UpdateCounter++
	p.snap.DataValid = 1
	p.batches++

	if p.projection != nil {
		if err := p.projection.Publish(&p.snap); err != nil {
			log.WithField("err", err).Warn("memory-mapped region unavailable, detaching")
			p.projection = nil
		}
	}
}

// CopySnapshot copies the current snapshot into dst. It only holds the lock
// for the duration of the copy.
func (p *Publisher) CopySnapshot(dst *Snapshot) {
	p.mu.Lock()
	*dst = p.snap
	p.mu.Unlock()
}

func (p *Publisher) Snapshot() Snapshot {
	var s Snapshot
	p.CopySnapshot(&s)
	return s
}

type PublisherStats struct {
	Batches uint64
	Applied uint64
	Ignored uint64
}

func (p *Publisher) Stats() PublisherStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PublisherStats{
		Batches: p.batches,
		Applied: p.applied,
		Ignored: p.ignored,
	}
}
