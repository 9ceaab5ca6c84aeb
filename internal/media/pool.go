package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// ScheduleStrategy decides which of n workers hosts the next session.
type ScheduleStrategy interface {
	Pick(n int) int
}

// RoundRobin cycles through workers in creation order.
type RoundRobin struct {
	mu   sync.Mutex
	next int
}

func (r *RoundRobin) Pick(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.next % n
	r.next = (r.next + 1) % n
	return i
}

// Pool owns a fixed set of workers. A worker death is unrecoverable for
// every room pinned to it, so the pool surfaces it through onDied and
// the process policy is a full restart.
type Pool struct {
	workers  []Worker
	strategy ScheduleStrategy
}

func NewPool(ctx context.Context, engine Engine, n int, settings WorkerSettings, onDied func(i int)) (*Pool, error) {
	if n < 1 {
		n = 1
	}
	p := &Pool{strategy: &RoundRobin{}}
	for i := 0; i < n; i++ {
		w, err := engine.NewWorker(ctx, settings)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("create worker %d: %w", i, err)
		}
		idx := i
		w.OnDied(func() {
			log.Error().Str("module", "media.pool").Int("worker", idx).Msg("worker died")
			if onDied != nil {
				onDied(idx)
			}
		})
		p.workers = append(p.workers, w)
	}
	log.Info().Str("module", "media.pool").Int("workers", len(p.workers)).Msg("worker pool started")
	return p, nil
}

func (p *Pool) Next() Worker {
	return p.workers[p.strategy.Pick(len(p.workers))]
}

func (p *Pool) Size() int { return len(p.workers) }

func (p *Pool) Close() {
	for _, w := range p.workers {
		w.Close()
	}
}
