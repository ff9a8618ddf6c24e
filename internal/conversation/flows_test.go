package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/easely-bot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, Options{})
	h.store.users["u1"] = &domain.User{UserID: "u1", Onboarded: true}
	h.setState("u1", domain.StateWaitingForToken)
	return h
}

func TestTokenRejectsFillerInput(t *testing.T) {
	for _, input := range []string{"ok", "Thanks", "short", "l"} {
		t.Run(input, func(t *testing.T) {
			h := tokenHarness(t)

			h.text("u1", input)

			assert.Equal(t, []string{msgTokenTooShort}, h.out.texts())
			assert.Equal(t, string(domain.StateWaitingForToken), h.state("u1"))
			assert.Empty(t, h.records.lastToken)
		})
	}
}

func TestTokenRejectedKeepsWaiting(t *testing.T) {
	h := tokenHarness(t)
	h.records.testErr = fmt.Errorf("get self: %w", domain.ErrCredentialRejected)

	h.text("u1", "1234~abcdefghijklmnop")

	assert.Equal(t, []string{msgTokenChecking, msgTokenInvalid}, h.out.texts())
	assert.Equal(t, string(domain.StateWaitingForToken), h.state("u1"))
	assert.Empty(t, h.store.updates)
}

func TestTokenUnreachableKeepsWaiting(t *testing.T) {
	h := tokenHarness(t)
	h.records.testErr = errors.New("dial tcp: i/o timeout")

	h.text("u1", "1234~abcdefghijklmnop")

	assert.Equal(t, msgTokenNoReach, h.out.last().text)
	assert.Equal(t, string(domain.StateWaitingForToken), h.state("u1"))
}

func TestTokenAcceptedPersistsOnce(t *testing.T) {
	h := tokenHarness(t)

	h.text("u1", "  1234~abcdefghijklmnop  ")

	require.Len(t, h.store.updates, 1)
	upd := h.store.updates[0]
	require.NotNil(t, upd.Credential)
	assert.Equal(t, "1234~abcdefghijklmnop", *upd.Credential)
	assert.Equal(t, "https://canvas.instructure.com", *upd.CredentialBaseURL)
	assert.Equal(t, "4242", *upd.CanvasUserID)
	assert.True(t, *upd.Onboarded)
	assert.Equal(t, testNow, *upd.LastSyncAt)

	assert.Empty(t, h.state("u1"))
	texts := h.out.texts()
	assert.Contains(t, texts, fmt.Sprintf(msgTokenSaved, "Ana"))
	assert.Equal(t, msgMainMenu, texts[len(texts)-1])
}

func TestTokenWithBaseURL(t *testing.T) {
	h := tokenHarness(t)

	h.text("u1", "https://school.instructure.com/login 1234~abcdefghijklmnop")

	assert.Equal(t, "1234~abcdefghijklmnop", h.records.lastToken)
	assert.Equal(t, "https://school.instructure.com", h.records.lastBase)
	assert.Equal(t, "https://school.instructure.com", h.store.user("u1").CredentialBaseURL)
}

func TestTokenReplacedMessage(t *testing.T) {
	h := tokenHarness(t)
	h.store.users["u1"].Credential = "old-token"

	h.text("u1", "1234~abcdefghijklmnop")

	assert.Contains(t, h.out.texts(), fmt.Sprintf(msgTokenReplaced, "Ana"))
}

func TestTokenSaveFailureKeepsWaiting(t *testing.T) {
	h := tokenHarness(t)
	h.store.updateErr = errStore

	h.text("u1", "1234~abcdefghijklmnop")

	assert.Equal(t, msgApology, h.out.last().text)
	assert.Equal(t, string(domain.StateWaitingForToken), h.state("u1"))
}

func TestTokenCancelWords(t *testing.T) {
	for _, input := range []string{"cancel", " BACK ", "menu", "Stop"} {
		t.Run(input, func(t *testing.T) {
			h := tokenHarness(t)

			h.text("u1", input)

			assert.Empty(t, h.state("u1"))
			assert.Equal(t, []string{msgTokenCanceled, msgMainMenu}, h.out.texts())
		})
	}
}

func TestTokenFlowPostbacks(t *testing.T) {
	h := tokenHarness(t)

	h.postback("u1", CodeTokenNeedHelp)
	assert.Equal(t, msgTokenHelp, h.out.last().text)
	assert.Equal(t, string(domain.StateWaitingForToken), h.state("u1"))

	h.postback("u1", CodeTasksToday)
	assert.Equal(t, msgTokenWaiting, h.out.last().text)
	assert.Equal(t, 0, h.records.fetchCalls)

	h.postback("u1", CodeCancelFlow)
	assert.Empty(t, h.state("u1"))
}

func TestDisconnectClearsCredential(t *testing.T) {
	h := newHarness(t, Options{})
	h.connectedUser("u1")
	h.store.users["u1"].CredentialBaseURL = "https://school.instructure.com"

	h.postback("u1", CodeDisconnectCanvas)

	u := h.store.user("u1")
	assert.Empty(t, u.Credential)
	assert.Empty(t, u.CredentialBaseURL)
	assert.Equal(t, msgDisconnected, h.out.texts()[0])
}

func TestTaskCreationFlow(t *testing.T) {
	h := newHarness(t, Options{MaxFreeTasksPerMonth: 5})
	h.connectedUser("u1")

	h.postback("u1", CodeAddTask)
	assert.Equal(t, string(domain.StateCreatingTaskTitle), h.state("u1"))

	h.text("u1", "Essay draft")
	assert.Equal(t, string(domain.StateCreatingTaskDate), h.state("u1"))

	h.postback("u1", CodeDateTomorrow)
	assert.Equal(t, string(domain.StateCreatingTaskTime), h.state("u1"))
	date, _ := h.store.session("u1", domain.SessionKeyTaskDate)
	assert.Equal(t, "2025-03-11", date)

	h.postback("u1", "TIME_17_00")
	assert.Equal(t, string(domain.StateCreatingTaskDescription), h.state("u1"))

	h.out.reset()
	h.text("u1", "Outline first")

	require.Len(t, h.records.drafts, 1)
	assert.Equal(t, domain.TaskDraft{
		Title:       "Essay draft",
		Date:        "2025-03-11",
		Time:        "17:00",
		Description: "Outline first",
	}, h.records.drafts[0])

	assert.Empty(t, h.state("u1"))
	_, ok := h.store.session("u1", domain.SessionKeyTaskTitle)
	assert.False(t, ok)

	texts := h.out.texts()
	require.Len(t, texts, 2)
	assert.True(t, strings.HasPrefix(texts[0], "✅ Task added!"))
	assert.Contains(t, texts[0], "Essay draft")
	assert.Contains(t, texts[0], "Tue, Mar 11 at 5:00 PM")
	assert.Contains(t, texts[0], msgTaskSynced)
	assert.Equal(t, msgMainMenu, texts[1])
}

func TestTaskCreationTypedValuesAndSkip(t *testing.T) {
	h := newHarness(t, Options{})
	h.connectedUser("u1")
	h.setState("u1", domain.StateCreatingTaskTitle)

	h.text("u1", "Lab report")
	h.text("u1", "next friday")
	h.text("u1", "2:30 pm")
	h.text("u1", "skip")

	require.Len(t, h.records.drafts, 1)
	assert.Equal(t, domain.TaskDraft{Title: "Lab report", Date: "2025-03-14", Time: "14:30"}, h.records.drafts[0])
}

func TestTaskCreationRejectsBadInput(t *testing.T) {
	h := newHarness(t, Options{})
	h.connectedUser("u1")
	h.setState("u1", domain.StateCreatingTaskTitle)

	h.text("u1", "x")
	assert.Equal(t, msgTitleTooShort, h.out.last().text)
	assert.Equal(t, string(domain.StateCreatingTaskTitle), h.state("u1"))

	h.text("u1", "Quiz")
	h.text("u1", "1/2/2020")
	assert.Equal(t, msgDatePast, h.out.last().text)
	assert.Equal(t, string(domain.StateCreatingTaskDate), h.state("u1"))

	h.text("u1", "someday")
	assert.Equal(t, msgDateInvalid, h.out.last().text)

	h.text("u1", "today")
	h.text("u1", "whenever")
	assert.Equal(t, msgTimeInvalid, h.out.last().text)
	assert.Equal(t, string(domain.StateCreatingTaskTime), h.state("u1"))
}

func TestTaskCreationCancel(t *testing.T) {
	h := newHarness(t, Options{})
	h.connectedUser("u1")
	h.setState("u1", domain.StateCreatingTaskTitle)
	h.text("u1", "Essay")

	h.postback("u1", CodeCancelFlow)

	assert.Empty(t, h.state("u1"))
	_, ok := h.store.session("u1", domain.SessionKeyTaskTitle)
	assert.False(t, ok)
	assert.Equal(t, []string{msgTaskCancelled, msgMainMenu}, h.out.texts()[1:])
}

func TestTaskCreationFailureClearsDraft(t *testing.T) {
	h := newHarness(t, Options{})
	h.connectedUser("u1")
	h.records.createErr = errors.New("canvas is down")
	h.setState("u1", domain.StateCreatingTaskTitle)

	h.text("u1", "Essay")
	h.postback("u1", CodeDateToday)
	h.postback("u1", "TIME_23_59")
	h.postback("u1", CodeDescriptionSkip)

	assert.Empty(t, h.state("u1"))
	assert.Contains(t, h.out.texts(), fmt.Sprintf(msgTaskFailed, "canvas is down"))
}

func TestTaskLimitForFreeUsers(t *testing.T) {
	h := newHarness(t, Options{MaxFreeTasksPerMonth: 3})
	h.connectedUser("u1")
	h.store.taskCount = 3

	h.postback("u1", CodeAddTask)

	assert.Equal(t, fmt.Sprintf(msgTaskLimitReached, 3), h.out.last().text)
	assert.Empty(t, h.state("u1"))

	h.store.users["u1"].Premium = true
	h.postback("u1", CodeAddTask)
	assert.Equal(t, string(domain.StateCreatingTaskTitle), h.state("u1"))
}

func TestQueryWindows(t *testing.T) {
	day := time.Date(2025, time.March, 10, 0, 0, 0, 0, testLoc)
	tests := []struct {
		code string
		want domain.Window
	}{
		{CodeTasksToday, domain.Window{From: day, To: day.AddDate(0, 0, 1)}},
		{CodeTasksWeek, domain.Window{From: day.AddDate(0, 0, 1), To: day.AddDate(0, 0, 8)}},
		{CodeTasksMonth, domain.Window{From: day, To: time.Date(2025, time.April, 1, 0, 0, 0, 0, testLoc)}},
		{CodeTasksOverdue, domain.Window{From: day.AddDate(0, 0, -14), To: testNow}},
		{CodeTasksAll, domain.Window{From: testNow, To: testNow.AddDate(0, 0, 30)}},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			h := newHarness(t, Options{})
			h.connectedUser("u1")

			h.postback("u1", tt.code)

			assert.True(t, tt.want.From.Equal(h.records.lastWindow.From), "from %v", h.records.lastWindow.From)
			assert.True(t, tt.want.To.Equal(h.records.lastWindow.To), "to %v", h.records.lastWindow.To)
		})
	}
}

func TestQueryErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"not connected", domain.ErrNotConnected, msgNotConnected},
		{"rejected", fmt.Errorf("list courses: %w", domain.ErrCredentialRejected), msgCredentialExpired},
		{"upstream", errors.New("503 service unavailable"), msgQueryFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			h.connectedUser("u1")
			h.records.fetchErr = tt.err

			h.postback("u1", CodeTasksWeek)

			assert.Equal(t, tt.want, h.out.texts()[0])
			assert.NotContains(t, h.out.texts(), msgApology)
		})
	}
}

func TestUpcomingListIsCapped(t *testing.T) {
	h := newHarness(t, Options{UpcomingLimit: 2})
	h.connectedUser("u1")
	for i := 0; i < 3; i++ {
		h.records.assignments = append(h.records.assignments, domain.Assignment{
			ID:         fmt.Sprint(i),
			Title:      fmt.Sprintf("Problem set %d", i+1),
			CourseName: "Calculus",
			DueAt:      testNow.Add(time.Duration(i+1) * 24 * time.Hour),
		})
	}

	h.postback("u1", CodeTasksAll)

	list := h.out.texts()[0]
	assert.Contains(t, list, "Problem set 1")
	assert.Contains(t, list, "Problem set 2")
	assert.NotContains(t, list, "Problem set 3")
	assert.Contains(t, list, fmt.Sprintf(msgMoreNotShown, 1))
}

func TestPremiumActivation(t *testing.T) {
	h := newHarness(t, Options{PremiumCodes: []string{"GOLD-2025"}})
	h.connectedUser("u1")

	h.text("u1", "activate")
	assert.Equal(t, string(domain.StateWaitingForPremiumCode), h.state("u1"))

	h.text("u1", "SILVER")
	assert.Equal(t, msgPremiumInvalid, h.out.last().text)
	assert.Equal(t, string(domain.StateWaitingForPremiumCode), h.state("u1"))

	h.text("u1", " gold-2025 ")
	assert.True(t, h.store.user("u1").Premium)
	assert.Empty(t, h.state("u1"))
	assert.Contains(t, h.out.texts(), msgPremiumActivated)
}

func TestPremiumStateEscapesOnPostback(t *testing.T) {
	h := newHarness(t, Options{PremiumCodes: []string{"GOLD"}})
	h.connectedUser("u1")
	h.setState("u1", domain.StateWaitingForPremiumCode)

	h.postback("u1", CodeTasksToday)

	assert.Equal(t, 1, h.records.fetchCalls)
}

func TestPremiumWithoutCodes(t *testing.T) {
	h := newHarness(t, Options{})
	h.connectedUser("u1")
	h.setState("u1", domain.StateWaitingForPremiumCode)

	h.text("u1", "ANYTHING")

	assert.Equal(t, msgPremiumUnavailable, h.out.texts()[0])
	assert.Empty(t, h.state("u1"))
	assert.False(t, h.store.user("u1").Premium)
}

// taskSteps walks a task draft from the title prompt to the description prompt.
var taskSteps = []Event{
	TextEvent("Essay"),
	PostbackEvent(CodeDateToday),
	PostbackEvent("TIME_23_59"),
	TextEvent("Outline first"),
}

func assertNoDraft(t *testing.T, h *harness, userID string) {
	t.Helper()
	assert.Empty(t, h.state(userID))
	for _, key := range []string{
		domain.SessionKeyTaskTitle,
		domain.SessionKeyTaskDate,
		domain.SessionKeyTaskTime,
		domain.SessionKeyTaskDescription,
	} {
		_, ok := h.store.session(userID, key)
		assert.False(t, ok, key)
	}
}

func TestTaskCreationWriteFailureClearsFlow(t *testing.T) {
	for i := range taskSteps {
		t.Run(fmt.Sprintf("step %d", i+1), func(t *testing.T) {
			h := newHarness(t, Options{})
			h.connectedUser("u1")
			h.postback("u1", CodeAddTask)
			for _, ev := range taskSteps[:i] {
				h.d.Dispatch(context.Background(), "u1", ev)
			}

			h.store.sessionErr = errStore
			h.d.Dispatch(context.Background(), "u1", taskSteps[i])

			assertNoDraft(t, h, "u1")
			assert.Equal(t, msgApology, h.out.last().text)
			assert.Empty(t, h.records.drafts)

			h.store.sessionErr = nil
			h.postback("u1", CodeAddTask)
			assert.Equal(t, string(domain.StateCreatingTaskTitle), h.state("u1"))
			_, ok := h.store.session("u1", domain.SessionKeyTaskTitle)
			assert.False(t, ok)
		})
	}
}

func TestTaskCreationTypedCancelAtEveryStep(t *testing.T) {
	for i := range taskSteps {
		for _, word := range []string{"cancel", " Back ", "MENU", "stop"} {
			t.Run(fmt.Sprintf("step %d %q", i+1, word), func(t *testing.T) {
				h := newHarness(t, Options{})
				h.connectedUser("u1")
				h.postback("u1", CodeAddTask)
				for _, ev := range taskSteps[:i] {
					h.d.Dispatch(context.Background(), "u1", ev)
				}

				h.out.reset()
				h.text("u1", word)

				assertNoDraft(t, h, "u1")
				assert.Equal(t, []string{msgTaskCancelled, msgMainMenu}, h.out.texts())
				assert.Empty(t, h.records.drafts)

				h.postback("u1", CodeAddTask)
				assert.Equal(t, string(domain.StateCreatingTaskTitle), h.state("u1"))
				_, ok := h.store.session("u1", domain.SessionKeyTaskTitle)
				assert.False(t, ok)
			})
		}
	}
}

func TestFlowEntryReason(t *testing.T) {
	tests := []struct {
		name  string
		user  domain.User
		enter func(h *harness)
		state domain.State
		want  string
	}{
		{
			name:  "task by postback",
			user:  domain.User{Onboarded: true, Credential: "stored-token"},
			enter: func(h *harness) { h.postback("u1", CodeAddTask) },
			state: domain.StateCreatingTaskTitle,
			want:  "postback:ADD_NEW_TASK",
		},
		{
			name:  "task by text",
			user:  domain.User{Onboarded: true, Credential: "stored-token"},
			enter: func(h *harness) { h.text("u1", "add task") },
			state: domain.StateCreatingTaskTitle,
			want:  "text:add_task",
		},
		{
			name:  "token by text",
			user:  domain.User{Onboarded: true, Credential: "stored-token"},
			enter: func(h *harness) { h.text("u1", "connect canvas") },
			state: domain.StateWaitingForToken,
			want:  "text:connect",
		},
		{
			name:  "token after consent",
			user:  domain.User{},
			enter: func(h *harness) { h.postback("u1", CodeFinalConsentAgree) },
			state: domain.StateWaitingForToken,
			want:  "postback:FINAL_CONSENT_AGREE",
		},
		{
			name:  "premium code",
			user:  domain.User{Onboarded: true, Credential: "stored-token"},
			enter: func(h *harness) { h.postback("u1", CodePremiumEnterCode) },
			state: domain.StateWaitingForPremiumCode,
			want:  "postback:PREMIUM_ENTER_CODE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			u := tt.user
			u.UserID = "u1"
			h.store.users["u1"] = &u

			tt.enter(h)

			assert.Equal(t, string(tt.state), h.state("u1"))
			reason, ok := h.store.session("u1", domain.SessionKeyEntryReason)
			require.True(t, ok)
			assert.Equal(t, tt.want, reason)
		})
	}
}

func TestUpcomingListDefaultCap(t *testing.T) {
	h := newHarness(t, Options{})
	h.connectedUser("u1")
	for i := 0; i < 12; i++ {
		h.records.assignments = append(h.records.assignments, domain.Assignment{
			ID:         fmt.Sprint(i),
			Title:      fmt.Sprintf("Reading %02d", i+1),
			CourseName: "History",
			DueAt:      testNow.Add(time.Duration(i+1) * time.Hour),
		})
	}

	h.postback("u1", CodeTasksAll)

	list := h.out.texts()[0]
	assert.Contains(t, list, "Reading 10")
	assert.NotContains(t, list, "Reading 11")
	assert.Contains(t, list, fmt.Sprintf(msgMoreNotShown, 2))
}
