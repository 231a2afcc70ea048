package core

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// PollReq is one due schedule, delivered to the HAL loop.
type PollReq struct {
	Addr CapAddr
	Verb string
}

type schedule struct {
	every, jitter time.Duration
	due           time.Time
}

// Poller fires control verbs on a fixed interval plus random jitter. It
// keeps a handful of schedules, so the earliest is found by a scan.
// Requests are dropped when the HAL has not drained the previous ones.
type Poller struct {
	mu    sync.Mutex
	sched map[PollReq]*schedule
	kick  chan struct{}
	rng   *rand.Rand
	out   chan<- PollReq
}

func NewPoller(out chan<- PollReq) *Poller {
	return &Poller{
		sched: map[PollReq]*schedule{},
		kick:  make(chan struct{}, 1),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		out:   out,
	}
}

// Set installs or replaces the schedule for verb on addr. A non-positive
// interval removes it. The first fire is one jittered interval away.
func (p *Poller) Set(addr CapAddr, verb string, every, jitter time.Duration) {
	if verb == "" {
		return
	}
	key := PollReq{Addr: addr, Verb: verb}
	p.mu.Lock()
	if every <= 0 {
		delete(p.sched, key)
	} else {
		s := &schedule{every: every, jitter: max(jitter, 0)}
		s.due = time.Now().Add(p.next(s))
		p.sched[key] = s
	}
	p.mu.Unlock()
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Len reports the number of live schedules.
func (p *Poller) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sched)
}

func (p *Poller) Run(ctx context.Context) {
	t := time.NewTimer(time.Hour)
	defer t.Stop()
	for {
		wait, ok := p.fireDue()
		var timeout <-chan time.Time
		if ok {
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
			t.Reset(wait)
			timeout = t.C
		}
		select {
		case <-ctx.Done():
			return
		case <-p.kick:
		case <-timeout:
		}
	}
}

// fireDue sends every due request, re-arms it, and returns the time until
// the next one. ok is false when nothing is scheduled.
func (p *Poller) fireDue() (wait time.Duration, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	var first time.Time
	for key, s := range p.sched {
		if !s.due.After(now) {
			select {
			case p.out <- key:
			default:
			}
			s.due = now.Add(p.next(s))
		}
		if first.IsZero() || s.due.Before(first) {
			first = s.due
		}
	}
	if first.IsZero() {
		return 0, false
	}
	return first.Sub(now), true
}

func (p *Poller) next(s *schedule) time.Duration {
	if s.jitter <= 0 {
		return s.every
	}
	return s.every + time.Duration(p.rng.Int63n(int64(s.jitter)+1))
}
