package models

import "time"

// TaskKind identifies what a background task does
type TaskKind string

const (
	TaskKindAnalyze      TaskKind = "analyze"
	TaskKindSearch       TaskKind = "search"
	TaskKindBatchProcess TaskKind = "batch_process"
)

// TaskState is the lifecycle of a single task: pending -> running -> completed | failed
type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateRunning   TaskState = "running"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
)

// IsTerminal reports whether no further events can follow this state
func (s TaskState) IsTerminal() bool {
	return s == TaskStateCompleted || s == TaskStateFailed
}

// TaskInput references what a task works on. Single-file tasks set Path,
// batch tasks set Directory and Pattern.
type TaskInput struct {
	Path      string `json:"path,omitempty"`
	Directory string `json:"directory,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
}

// TaskResult is the payload of a completed task. Which fields are set depends on the kind:
// analyze fills References and Artifact, search fills Result, batch fills Result and Rows.
type TaskResult struct {
	Result     StageResult      `json:"result"`
	References []ModelReference `json:"references,omitempty"`
	Artifact   string           `json:"artifact,omitempty"`
	Rows       []BatchRow       `json:"rows,omitempty"`
}

// Task is one unit of background work. The runner owns it for its lifetime;
// callers only ever see copies.
type Task struct {
	ID         string      `json:"id"`
	Kind       TaskKind    `json:"kind"`
	Input      TaskInput   `json:"input"`
	State      TaskState   `json:"state"`
	Progress   int         `json:"progress"`
	Result     *TaskResult `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// TaskEventType discriminates the events a task reports back to the control loop
type TaskEventType string

const (
	TaskEventLog           TaskEventType = "log"
	TaskEventProgress      TaskEventType = "progress"
	TaskEventStatusChanged TaskEventType = "status_changed"
	TaskEventCompleted     TaskEventType = "completed"
	TaskEventFailed        TaskEventType = "failed"
)

// TaskEvent is delivered to the task's handler on the control loop.
// Text carries the log line, status text or failure summary; Percent is set for progress;
// Result is set for completed.
type TaskEvent struct {
	Type    TaskEventType
	TaskID  string
	Kind    TaskKind
	Text    string
	Percent int
	Result  TaskResult
}
