package domain

import (
	"fmt"
	"time"
)

// TaskDraft is a manual task being assembled across several turns.
type TaskDraft struct {
	Title       string
	Date        string // DraftDateLayout
	Time        string // DraftTimeLayout
	Description string
}

// DueAt resolves the draft's date and time in loc.
func (d TaskDraft) DueAt(loc *time.Location) (time.Time, error) {
	if d.Title == "" || d.Date == "" || d.Time == "" {
		return time.Time{}, fmt.Errorf("incomplete task draft")
	}
	due, err := time.ParseInLocation(DraftDateLayout+" "+DraftTimeLayout, d.Date+" "+d.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse draft due time: %w", err)
	}
	return due, nil
}

// Task is a persisted manual task.
type Task struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	DueAt         time.Time `json:"due_at"`
	CanvasEventID string    `json:"canvas_event_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// CreatedTask is the result of creating a manual task.
type CreatedTask struct {
	Task
	// Synced is true when the task was also written to the Canvas calendar.
	Synced bool
}

// MessageLog records one inbound event for auditing.
type MessageLog struct {
	UserID    string
	Kind      string
	Content   string
	CreatedAt time.Time
}
