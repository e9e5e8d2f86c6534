package cache

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// StaleFunc reports whether an entry was built from files that have since
// changed.
type StaleFunc func(ctx context.Context, entry *Entry) bool

// Sweeper evicts stale entries from a Store on a cron schedule.
type Sweeper struct {
	store   Store
	stale   StaleFunc
	gate    func() bool
	cron    *cron.Cron
	mu      sync.Mutex
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSweeper creates a sweeper for store.
func NewSweeper(store Store, stale StaleFunc) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())

	// Accept 5-field, 6-field (seconds) and descriptor (@every 1m) schedules
	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)

	return &Sweeper{
		store:  store,
		stale:  stale,
		cron:   cron.New(cron.WithParser(parser)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetGate makes scheduled sweeps run only while gate returns true, for
// example while this instance is the leader of a shared cache.
func (s *Sweeper) SetGate(gate func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = gate
}

func (s *Sweeper) runScheduled() {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()

	if gate != nil && !gate() {
		log.Debug().Msg("Skipping bundle cache sweep on follower")
		return
	}
	if _, err := s.Sweep(s.ctx); err != nil {
		log.Error().Err(err).Msg("Bundle cache sweep failed")
	}
}

// Start schedules Sweep. An empty schedule disables sweeping.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		log.Info().Msg("Bundle cache sweep disabled")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cron.AddFunc(schedule, s.runScheduled)
	if err != nil {
		return err
	}
	s.entryID = id
	s.cron.Start()

	log.Info().Str("schedule", schedule).Msg("Bundle cache sweep scheduled")
	return nil
}

// Stop cancels the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.cancel()
	ctx := s.cron.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(30 * time.Second):
		log.Warn().Msg("Bundle cache sweep shutdown timeout")
	}
}

// Sweep checks every entry once and deletes the stale ones. It returns
// the number of evicted entries.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	keys, err := s.store.Keys(ctx)
	if err != nil {
		return 0, err
	}

	evicted := 0
	for _, key := range keys {
		entry, err := s.store.Get(ctx, key)
		if err != nil {
			continue
		}
		if !s.stale(ctx, entry) {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			return evicted, err
		}
		for _, artifact := range entry.Artifacts {
			if err := s.store.Delete(ctx, artifact); err != nil {
				return evicted, err
			}
		}
		evicted++
		log.Debug().Str("key", key).Strs("artifacts", entry.Artifacts).Msg("Evicted stale bundle")
	}

	if evicted > 0 {
		log.Info().Int("evicted", evicted).Int("checked", len(keys)).Msg("Bundle cache sweep completed")
	}
	return evicted, nil
}
