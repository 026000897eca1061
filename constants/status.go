package constants

// TaskStatus is the canonical status for rows in analysis_tasks.
type TaskStatus string

// Stable values (store these exact strings in DB).
const (
	TaskStatusQueued  TaskStatus = "QUEUED"  // recorded, not yet picked up
	TaskStatusRunning TaskStatus = "RUNNING" // a worker owns it
	TaskStatusDone    TaskStatus = "DONE"    // text stored
	TaskStatusFailed  TaskStatus = "FAILED"  // terminal failure
)

// ActiveTaskStatuses are the statuses a task can still leave.
var ActiveTaskStatuses = []TaskStatus{TaskStatusQueued, TaskStatusRunning}

// Terminal reports whether no further transition is allowed from s.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusDone || s == TaskStatusFailed
}

func (s TaskStatus) String() string { return string(s) }
