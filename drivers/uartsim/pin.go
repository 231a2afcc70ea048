package uartsim

import "sync/atomic"

// Pin is a simulated GPIO usable as an RTS or CTS shadow pin.
type Pin struct {
	level atomic.Bool
	sets  atomic.Uint32
	edge  atomic.Pointer[func()]
}

func (p *Pin) Set(v bool) {
	p.level.Store(v)
	p.sets.Add(1)
}

func (p *Pin) Get() bool { return p.level.Load() }

// Drive changes the level as the remote end would, without counting a Set.
// A level change runs the edge callback, if any.
func (p *Pin) Drive(v bool) {
	if p.level.Swap(v) == v {
		return
	}
	if fn := p.edge.Load(); fn != nil {
		(*fn)()
	}
}

// OnEdge installs fn to run on every driven level change. nil removes it.
func (p *Pin) OnEdge(fn func()) {
	if fn == nil {
		p.edge.Store(nil)
		return
	}
	p.edge.Store(&fn)
}

// Sets is the number of Set calls so far.
func (p *Pin) Sets() uint32 { return p.sets.Load() }
