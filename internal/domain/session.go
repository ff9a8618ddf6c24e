package domain

// Session field keys. All fields share the user_sessions table with the
// conversation state and expire together.
const (
	SessionKeyState           = "conversation_state"
	SessionKeyTaskTitle       = "task_title"
	SessionKeyTaskDate        = "task_date"
	SessionKeyTaskTime        = "task_time"
	SessionKeyTaskDescription = "task_description"
	SessionKeyEntryReason     = "entry_reason"
)

// Layouts used for draft fields stored in the session.
const (
	DraftDateLayout = "2006-01-02"
	DraftTimeLayout = "15:04"
)
