package domain

import "time"

// TaskStatus represents the current state of a queued task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task is a queued execution of one job. The job record holds the state;
// the task only tracks delivery and retries.
type Task struct {
	// ID is the unique identifier for this task
	ID string `json:"id"`

	// JobID points at the job to execute
	JobID string `json:"job_id"`

	// Status is the current delivery state
	Status TaskStatus `json:"status"`

	// Attempts is how many times this task has been attempted
	Attempts int `json:"attempts"`

	// MaxAttempts is the maximum retry count before giving up
	MaxAttempts int `json:"max_attempts"`

	// Error contains the last error message if failed
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// ScheduledFor is when the task should next be processed
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewTask creates a task pointing at a job.
func NewTask(jobID string) *Task {
	now := time.Now()
	return &Task{
		ID:           GenerateID(),
		JobID:        jobID,
		Status:       TaskStatusPending,
		MaxAttempts:  3,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now,
	}
}

// CanRetry reports whether the task has retry budget left.
func (t *Task) CanRetry() bool {
	return t.Attempts < t.MaxAttempts
}

// MarkProcessing transitions the task to processing.
func (t *Task) MarkProcessing() {
	t.Status = TaskStatusProcessing
	t.Attempts++
	t.UpdatedAt = time.Now()
}

// MarkCompleted transitions the task to completed.
func (t *Task) MarkCompleted() {
	t.Status = TaskStatusCompleted
	t.UpdatedAt = time.Now()
}

// MarkFailed transitions the task to failed with a reason.
func (t *Task) MarkFailed(reason string) {
	t.Status = TaskStatusFailed
	t.Error = reason
	t.UpdatedAt = time.Now()
}

// Retry schedules another attempt with a linear backoff.
func (t *Task) Retry(reason string) {
	t.Status = TaskStatusPending
	t.Error = reason
	t.UpdatedAt = time.Now()
	t.ScheduledFor = time.Now().Add(time.Duration(t.Attempts) * 30 * time.Second)
}
