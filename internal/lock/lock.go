// Package lock serializes pipeline jobs through the task_locks table. A
// partial unique index on (job_type) WHERE state='running' makes acquisition
// an atomic conditional insert, so two processes racing for the same job
// type cannot both win.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/salusworks/recall-cli/internal/model"
	"github.com/salusworks/recall-cli/internal/store"
)

// ErrLockHeld is returned by Acquire when another process holds a running
// lock for the job type and its lease is still fresh.
var ErrLockHeld = errors.New("lock: job type already running")

// Registry is the slice of the store the lock service needs.
type Registry interface {
	InsertLock(ctx context.Context, entry *model.TaskLockEntry) error
	ActiveLock(ctx context.Context, jobType model.JobType) (*model.TaskLockEntry, error)
	UpdateLockState(ctx context.Context, id string, state model.LockState, errMsg string) error
	TouchLock(ctx context.Context, id string, at time.Time) error
	CancelRunningLocks(ctx context.Context) (int, error)
}

const defaultLease = 15 * time.Minute

// Service coordinates task locks with lease-based crash detection.
type Service struct {
	reg   Registry
	lease time.Duration
	now   func() time.Time
}

type Option func(*Service)

// WithLease overrides the default lease. A lease of zero disables stale
// detection entirely; such locks only clear through Release or RecoverAll.
func WithLease(d time.Duration) Option {
	return func(s *Service) { s.lease = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(reg Registry, opts ...Option) *Service {
	s := &Service{
		reg:   reg,
		lease: defaultLease,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire takes the running lock for the job type. If the current holder's
// lease has expired the stale entry is marked failed and the lock is stolen.
// A live holder yields ErrLockHeld.
func (s *Service) Acquire(ctx context.Context, jobType model.JobType) (*model.TaskLockEntry, error) {
	entry, err := s.tryInsert(ctx, jobType)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, store.ErrDuplicateLock) {
		return nil, eris.Wrapf(err, "lock: acquire %s", jobType)
	}

	holder, err := s.reg.ActiveLock(ctx, jobType)
	if err != nil {
		return nil, eris.Wrapf(err, "lock: inspect holder for %s", jobType)
	}
	if holder == nil {
		// Holder released between our insert and the lookup. One retry.
		entry, err = s.tryInsert(ctx, jobType)
		if err != nil {
			if errors.Is(err, store.ErrDuplicateLock) {
				return nil, eris.Wrapf(ErrLockHeld, "lock: acquire %s", jobType)
			}
			return nil, eris.Wrapf(err, "lock: acquire %s", jobType)
		}
		return entry, nil
	}

	if !holder.LeaseExpired(s.now()) {
		return nil, eris.Wrapf(ErrLockHeld, "lock: acquire %s held by %s since %s",
			jobType, holder.ID, holder.AcquiredAt.Format(time.RFC3339))
	}

	zap.L().Warn("stealing stale lock",
		zap.String("job_type", string(jobType)),
		zap.String("holder_id", holder.ID),
		zap.Time("last_heartbeat", holder.HeartbeatAt))

	if err := s.reg.UpdateLockState(ctx, holder.ID, model.LockStateFailed, "lease expired"); err != nil {
		return nil, eris.Wrapf(err, "lock: expire stale holder %s", holder.ID)
	}
	entry, err = s.tryInsert(ctx, jobType)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateLock) {
			// Someone else stole it first.
			return nil, eris.Wrapf(ErrLockHeld, "lock: acquire %s", jobType)
		}
		return nil, eris.Wrapf(err, "lock: acquire %s after steal", jobType)
	}
	return entry, nil
}

func (s *Service) tryInsert(ctx context.Context, jobType model.JobType) (*model.TaskLockEntry, error) {
	now := s.now().UTC()
	entry := &model.TaskLockEntry{
		JobType:      jobType,
		State:        model.LockStateRunning,
		AcquiredAt:   now,
		HeartbeatAt:  now,
		LeaseSeconds: int(s.lease / time.Second),
	}
	if err := s.reg.InsertLock(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// HasActiveLock reports whether a running lock exists for the job type,
// ignoring lease state.
func (s *Service) HasActiveLock(ctx context.Context, jobType model.JobType) (bool, error) {
	holder, err := s.reg.ActiveLock(ctx, jobType)
	if err != nil {
		return false, eris.Wrapf(err, "lock: check %s", jobType)
	}
	return holder != nil, nil
}

// Heartbeat extends the lease on a running lock.
func (s *Service) Heartbeat(ctx context.Context, lockID string) error {
	if err := s.reg.TouchLock(ctx, lockID, s.now().UTC()); err != nil {
		return eris.Wrapf(err, "lock: heartbeat %s", lockID)
	}
	return nil
}

// Release transitions the lock to its terminal state. Outcome must be one
// of Completed, Cancelled or Failed.
func (s *Service) Release(ctx context.Context, lockID string, outcome model.LockState, errMsg string) error {
	switch outcome {
	case model.LockStateCompleted, model.LockStateCancelled, model.LockStateFailed:
	default:
		return eris.Errorf("lock: release with non-terminal state %q", outcome)
	}
	if err := s.reg.UpdateLockState(ctx, lockID, outcome, errMsg); err != nil {
		return eris.Wrapf(err, "lock: release %s", lockID)
	}
	return nil
}

// RecoverAll force-cancels every running lock. Manual crash recovery for
// operators; normal flows rely on lease expiry instead.
func (s *Service) RecoverAll(ctx context.Context) (int, error) {
	n, err := s.reg.CancelRunningLocks(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "lock: recover all")
	}
	if n > 0 {
		zap.L().Info("recovered running locks", zap.Int("count", n))
	}
	return n, nil
}
