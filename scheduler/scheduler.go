package scheduler

import (
	"context"
	"sync"
	"time"

	cron "github.com/robfig/cron/v3"
)

type JobFunc func(context.Context)

type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
}

// New starts a scheduler using standard 5-field cron syntax in UTC, the
// notation the sync schedule is written in ("0 8 * * 1-5").
func New() *Scheduler {
	c := cron.New(cron.WithLocation(time.UTC))
	c.Start()
	return &Scheduler{cron: c, entries: map[string]cron.EntryID{}}
}

func (s *Scheduler) Schedule(name string, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	id, err := s.cron.AddFunc(spec, func() { fn(context.Background()) })
	if err != nil {
		return err
	}
	s.entries[name] = id
	return nil
}

func (s *Scheduler) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}

// Stop halts the cron loop; running jobs are left to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron.Stop()
}
