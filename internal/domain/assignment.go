package domain

import "time"

// Assignment sources.
const (
	SourceCanvas = "canvas"
	SourceManual = "manual"
)

// Assignment is a read-only view of a dated item from Canvas or a manual task.
type Assignment struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	CourseName  string    `json:"course_name"`
	CourseCode  string    `json:"course_code,omitempty"`
	DueAt       time.Time `json:"due_at"`
	URL         string    `json:"url,omitempty"`
	Description string    `json:"description,omitempty"`
	Points      float64   `json:"points,omitempty"`
	Source      string    `json:"source"`
}

// Window is a half-open time range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// Identity is the profile returned when a credential is validated.
type Identity struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PrimaryEmail string `json:"primary_email,omitempty"`
}
