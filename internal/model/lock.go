package model

import "time"

// JobType identifies a lockable pipeline job family.
type JobType string

const (
	JobTypeRecallSubmit JobType = "recall_submit"
	JobTypeRecallImport JobType = "recall_import"
	JobTypeRecallBatch  JobType = "recall_batch"
)

// LockState is the lifecycle state of a task lock entry.
type LockState string

const (
	LockStateRunning   LockState = "running"
	LockStateCompleted LockState = "completed"
	LockStateCancelled LockState = "cancelled"
	LockStateFailed    LockState = "failed"
)

// TaskLockEntry is one row of the task_locks table. At most one running
// entry may exist per job type, enforced by a partial unique index rather
// than application convention.
type TaskLockEntry struct {
	ID           string     `json:"id"`
	JobType      JobType    `json:"job_type"`
	State        LockState  `json:"state"`
	Error        string     `json:"error,omitempty"`
	AcquiredAt   time.Time  `json:"acquired_at"`
	HeartbeatAt  time.Time  `json:"heartbeat_at"`
	LeaseSeconds int        `json:"lease_seconds"`
	ReleasedAt   *time.Time `json:"released_at,omitempty"`
}

// LeaseExpired reports whether the lock's lease has lapsed without a
// heartbeat, meaning the holder likely crashed.
func (e *TaskLockEntry) LeaseExpired(now time.Time) bool {
	if e.LeaseSeconds <= 0 {
		return false
	}
	return now.Sub(e.HeartbeatAt) > time.Duration(e.LeaseSeconds)*time.Second
}
