package app

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

// Scheduler runs named recurring tasks on a shared clock until stopped.
type Scheduler struct {
	clock  clock.Clock
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	tasks    []string
	stopOnce sync.Once
}

func NewScheduler(ctx context.Context, clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{clock: clk, ctx: ctx, cancel: cancel}
}

// Every runs fn each interval. A panic inside fn is logged and the task
// keeps its schedule.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	s.tasks = append(s.tasks, name)
	s.mu.Unlock()

	ticker := s.clock.Ticker(interval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.run(name, fn)
			}
		}
	}()

	log.Debug().Str("task", name).Dur("interval", interval).Msg("Scheduled task")
}

func (s *Scheduler) run(name string, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("task", name).Msg("Scheduled task panicked")
		}
	}()
	fn(s.ctx)
}

func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Stop cancels every task and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}
