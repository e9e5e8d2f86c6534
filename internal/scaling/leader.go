// Package scaling coordinates assetbundle instances that share a cache.
package scaling

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// SweeperLockID is the advisory lock held by the instance that sweeps the
// shared bundle cache.
const SweeperLockID int64 = 0x42756E64_00000001 // "Bund" + 1

// Locker takes and releases a named cluster-wide lock without blocking.
type Locker interface {
	TryLock(ctx context.Context, id int64) (bool, error)
	Unlock(ctx context.Context, id int64) error
}

// PostgresLocker uses PostgreSQL session advisory locks. The lock belongs
// to one pooled connection, which is held until Unlock.
type PostgresLocker struct {
	pool *pgxpool.Pool

	mu   sync.Mutex
	conn *pgxpool.Conn
	held bool
}

// NewPostgresLocker creates a locker on pool.
func NewPostgresLocker(pool *pgxpool.Pool) *PostgresLocker {
	return &PostgresLocker{pool: pool}
}

func (l *PostgresLocker) TryLock(ctx context.Context, id int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		conn, err := l.pool.Acquire(ctx)
		if err != nil {
			return false, err
		}
		l.conn = conn
	}

	// Already held by this session; just check the session is alive
	if l.held {
		if _, err := l.conn.Exec(ctx, "SELECT 1"); err != nil {
			l.reset()
			return false, err
		}
		return true, nil
	}

	var acquired bool
	if err := l.conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&acquired); err != nil {
		l.reset()
		return false, err
	}
	l.held = acquired
	return acquired, nil
}

func (l *PostgresLocker) reset() {
	l.conn.Release()
	l.conn = nil
	l.held = false
}

func (l *PostgresLocker) Unlock(ctx context.Context, id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}
	_, err := l.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", id)
	l.reset()
	return err
}

// LeaderElector periodically tries to take a lock and reports whether this
// instance holds it. Losing the lock is noticed on the next check.
type LeaderElector struct {
	locker        Locker
	lockID        int64
	lockName      string
	isLeader      bool
	isLeaderMu    sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
	done          chan struct{}
	started       bool
	checkInterval time.Duration
}

// NewLeaderElector creates a new leader elector for the given lock ID.
// The lock name is used for logging purposes.
func NewLeaderElector(locker Locker, lockID int64, lockName string) *LeaderElector {
	ctx, cancel := context.WithCancel(context.Background())
	return &LeaderElector{
		locker:        locker,
		lockID:        lockID,
		lockName:      lockName,
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
		checkInterval: 5 * time.Second,
	}
}

// WithCheckInterval sets how often the lock is retried.
func (le *LeaderElector) WithCheckInterval(d time.Duration) *LeaderElector {
	le.checkInterval = d
	return le
}

// Start begins the election loop. onBecomeLeader and onLoseLeadership may
// be nil.
func (le *LeaderElector) Start(onBecomeLeader, onLoseLeadership func()) {
	log.Info().
		Str("lock", le.lockName).
		Int64("lock_id", le.lockID).
		Msg("Starting leader election")

	le.started = true
	go le.electionLoop(onBecomeLeader, onLoseLeadership)
}

// Stop ends the election loop and releases the lock if held.
func (le *LeaderElector) Stop() {
	log.Info().
		Str("lock", le.lockName).
		Bool("was_leader", le.IsLeader()).
		Msg("Stopping leader election")

	le.cancel()
	if le.started {
		<-le.done
	}

	if le.IsLeader() {
		le.releaseLock()
	}
}

// IsLeader returns true if this instance currently holds the lock.
func (le *LeaderElector) IsLeader() bool {
	le.isLeaderMu.RLock()
	defer le.isLeaderMu.RUnlock()
	return le.isLeader
}

func (le *LeaderElector) electionLoop(onBecomeLeader, onLoseLeadership func()) {
	defer close(le.done)

	ticker := time.NewTicker(le.checkInterval)
	defer ticker.Stop()

	le.tryAcquireLock(onBecomeLeader, onLoseLeadership)

	for {
		select {
		case <-le.ctx.Done():
			return
		case <-ticker.C:
			le.tryAcquireLock(onBecomeLeader, onLoseLeadership)
		}
	}
}

func (le *LeaderElector) tryAcquireLock(onBecomeLeader, onLoseLeadership func()) {
	ctx, cancel := context.WithTimeout(le.ctx, 5*time.Second)
	defer cancel()

	acquired, err := le.locker.TryLock(ctx, le.lockID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Error().
			Err(err).
			Str("lock", le.lockName).
			Msg("Failed to try leader lock")
		acquired = false
	}

	le.isLeaderMu.Lock()
	wasLeader := le.isLeader
	le.isLeader = acquired
	le.isLeaderMu.Unlock()

	if acquired && !wasLeader {
		log.Info().
			Str("lock", le.lockName).
			Msg("Acquired leader lock - this instance is now the leader")
		if onBecomeLeader != nil {
			onBecomeLeader()
		}
	} else if !acquired && wasLeader {
		log.Warn().
			Str("lock", le.lockName).
			Msg("Lost leader lock - this instance is no longer the leader")
		if onLoseLeadership != nil {
			onLoseLeadership()
		}
	}
}

func (le *LeaderElector) releaseLock() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := le.locker.Unlock(ctx, le.lockID); err != nil {
		log.Error().
			Err(err).
			Str("lock", le.lockName).
			Msg("Failed to release leader lock")
	} else {
		log.Info().
			Str("lock", le.lockName).
			Msg("Released leader lock")
	}

	le.isLeaderMu.Lock()
	le.isLeader = false
	le.isLeaderMu.Unlock()
}

// TryAcquireOnce tries to take the lock once without starting the loop.
func (le *LeaderElector) TryAcquireOnce(ctx context.Context) (bool, error) {
	acquired, err := le.locker.TryLock(ctx, le.lockID)
	if err != nil {
		return false, err
	}

	le.isLeaderMu.Lock()
	le.isLeader = acquired
	le.isLeaderMu.Unlock()

	return acquired, nil
}
