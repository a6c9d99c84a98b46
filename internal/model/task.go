package model

import "time"

// DefaultDeadline is added to the creation time when no deadline is given.
const DefaultDeadline = 24 * time.Hour

// TaskState is the lifecycle position of a stored task. A removed task has no
// state because its row no longer exists.
type TaskState int

const (
	StateUnassigned TaskState = iota
	StateOffered
	StateAssigned
	StateFinished
)

func (s TaskState) String() string {
	switch s {
	case StateUnassigned:
		return "open_unassigned"
	case StateOffered:
		return "open_offered"
	case StateAssigned:
		return "open_assigned"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Task is a household chore raised in a chat.
type Task struct {
	ID          uint  `gorm:"primaryKey"`
	ChatID      uint  `gorm:"not null;uniqueIndex:idx_task_chat_message,priority:1"`
	Chat        Chat  `gorm:"constraint:OnDelete:CASCADE"`
	CreatorID   uint  `gorm:"not null;index"`
	Creator     User  `gorm:"constraint:OnDelete:CASCADE"`
	ExecutorID  *uint `gorm:"index"`
	Executor    *User
	CandidateID *uint
	Candidate   *User
	Text        string `gorm:"not null"`
	Note        string
	Deadline    time.Time
	IsFinished  bool `gorm:"default:false"`
	FinishedAt  *time.Time
	// MessageID points at the chat message that renders this task.
	MessageID int `gorm:"not null;uniqueIndex:idx_task_chat_message,priority:2"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// State derives the lifecycle state from the stored columns.
func (t *Task) State() TaskState {
	switch {
	case t.IsFinished:
		return StateFinished
	case t.ExecutorID != nil:
		return StateAssigned
	case t.CandidateID != nil:
		return StateOffered
	default:
		return StateUnassigned
	}
}

// IsOpen reports whether the task still accepts transitions.
func (t *Task) IsOpen() bool {
	return !t.IsFinished
}
