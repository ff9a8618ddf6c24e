package domain

// State is the user's position in a multi-turn flow.
type State string

// Conversation states. StateIdle is stored as the absence of a state row.
const (
	StateIdle                    State = "idle"
	StatePrivacyAgreed           State = "privacy_agreed"
	StateTermsAgreed             State = "terms_agreed"
	StateOnboardingComplete      State = "onboarding_complete"
	StateWaitingForToken         State = "waiting_for_token"
	StateTokenVerified           State = "token_verified"
	StateCreatingTaskTitle       State = "creating_task_title"
	StateCreatingTaskDate        State = "creating_task_date"
	StateCreatingTaskTime        State = "creating_task_time"
	StateCreatingTaskDescription State = "creating_task_description"
	StateWaitingForPremiumCode   State = "waiting_for_premium_code"
)

var knownStates = map[State]struct{}{
	StateIdle:                    {},
	StatePrivacyAgreed:           {},
	StateTermsAgreed:             {},
	StateOnboardingComplete:      {},
	StateWaitingForToken:         {},
	StateTokenVerified:           {},
	StateCreatingTaskTitle:       {},
	StateCreatingTaskDate:        {},
	StateCreatingTaskTime:        {},
	StateCreatingTaskDescription: {},
	StateWaitingForPremiumCode:   {},
}

// ParseState converts a stored value into a State. An empty value is idle.
func ParseState(s string) (State, bool) {
	if s == "" {
		return StateIdle, true
	}
	st := State(s)
	if _, ok := knownStates[st]; !ok {
		return StateIdle, false
	}
	return st, true
}

// AwaitingInput reports whether the next inbound event belongs to the
// current flow regardless of its kind or content.
func (s State) AwaitingInput() bool {
	switch s {
	case StateWaitingForToken,
		StateCreatingTaskTitle,
		StateCreatingTaskDate,
		StateCreatingTaskTime,
		StateCreatingTaskDescription:
		return true
	}
	return false
}

// IsTaskCreation reports whether s is a step of the manual task flow.
func (s State) IsTaskCreation() bool {
	switch s {
	case StateCreatingTaskTitle, StateCreatingTaskDate, StateCreatingTaskTime, StateCreatingTaskDescription:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}
