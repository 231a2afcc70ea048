package uartsim

import "sync"

// NVIC is a vector table for simulated interrupt lines.
type NVIC struct {
	mu  sync.Mutex
	vec map[int]func()
}

func NewNVIC() *NVIC { return &NVIC{vec: map[int]func(){}} }

func (n *NVIC) RegisterVector(irq int, handler func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if handler == nil {
		delete(n.vec, irq)
		return
	}
	n.vec[irq] = handler
}

// Fire runs the handler bound to irq. It reports false when none is bound.
func (n *NVIC) Fire(irq int) bool {
	n.mu.Lock()
	h := n.vec[irq]
	n.mu.Unlock()
	if h == nil {
		return false
	}
	h()
	return true
}

func (n *NVIC) Bound(irq int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.vec[irq] != nil
}
