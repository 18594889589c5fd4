package flightreader

type projectionStub struct {
	calls     []string
	published []Snapshot
	err       error
}

func (p *projectionStub) MarkInvalid() {
	p.calls = append(p.calls, "invalid")
}

func (p *projectionStub) Publish(s *Snapshot) error {
	p.calls = append(p.calls, "publish")
	p.published = append(p.published, *s)
	return p.err
}
