package conversation

import (
	"context"
	"strings"
	"unicode"

	"github.com/ashureev/easely-bot/internal/domain"
)

type handlerFunc func(d *Dispatcher, ctx context.Context, user *domain.User) error

// postbacks maps exact codes to their idle-state handlers. Date, time and
// description codes are only meaningful inside the task flow and fall
// through to the unknown-code reply here.
var postbacks = map[string]handlerFunc{
	CodeGetStarted:          (*Dispatcher).getStarted,
	CodePrivacyPolicyRead:   (*Dispatcher).privacyPolicyRead,
	CodePrivacyAgree:        (*Dispatcher).privacyAgree,
	CodePrivacyDecline:      (*Dispatcher).declineConsent,
	CodeTermsRead:           (*Dispatcher).termsRead,
	CodeTermsAgree:          (*Dispatcher).termsAgree,
	CodeTermsDecline:        (*Dispatcher).declineConsent,
	CodeFinalConsentAgree:   (*Dispatcher).finalConsentAgree,
	CodeFinalConsentDecline: (*Dispatcher).declineConsent,

	CodeConnectCanvas:    (*Dispatcher).requestToken,
	CodeTokenKnowHow:     (*Dispatcher).requestToken,
	CodeTokenReady:       (*Dispatcher).requestToken,
	CodeTokenNeedHelp:    (*Dispatcher).tokenHelp,
	CodeTokenTutorial:    (*Dispatcher).tokenHelp,
	CodeWatchVideo:       (*Dispatcher).watchVideo,
	CodeDisconnectCanvas: (*Dispatcher).disconnectCanvas,

	CodeTasksToday:   (*Dispatcher).tasksToday,
	CodeTasksWeek:    (*Dispatcher).tasksWeek,
	CodeTasksMonth:   (*Dispatcher).tasksMonth,
	CodeTasksOverdue: (*Dispatcher).tasksOverdue,
	CodeTasksAll:     (*Dispatcher).tasksUpcoming,

	CodeAddTask:    (*Dispatcher).startTask,
	CodeCancelFlow: (*Dispatcher).mainMenu,

	CodeMainMenu:         (*Dispatcher).mainMenu,
	CodeShowSettings:     (*Dispatcher).settings,
	CodeShowHelp:         (*Dispatcher).help,
	CodeShowAbout:        (*Dispatcher).about,
	CodeShowPremium:      (*Dispatcher).showPremium,
	CodeSkipPremium:      (*Dispatcher).skipPremium,
	CodePremiumEnterCode: (*Dispatcher).enterPremiumCode,
}

func (d *Dispatcher) handlePostback(ctx context.Context, user *domain.User, code string) error {
	h, ok := postbacks[code]
	if !ok {
		d.say(ctx, user.UserID, msgUnknownCode)
		d.showMainMenu(ctx, user.UserID)
		return nil
	}
	return h(d, withEntryReason(ctx, "postback:"+code), user)
}

// utterance is free text prepared for matching.
type utterance struct {
	text  string
	words map[string]bool
}

func newUtterance(s string) utterance {
	text := strings.ToLower(strings.TrimSpace(s))
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	words := make(map[string]bool, len(fields))
	for _, f := range fields {
		words[f] = true
	}
	return utterance{text: text, words: words}
}

func (u utterance) has(phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(u.text, p) {
			return true
		}
	}
	return false
}

func (u utterance) hasWord(words ...string) bool {
	for _, w := range words {
		if u.words[w] {
			return true
		}
	}
	return false
}

type rule struct {
	name   string
	match  func(u utterance) bool
	handle handlerFunc
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{
		name:   "overdue",
		match:  func(u utterance) bool { return u.has("overdue", "past due") || u.hasWord("late", "missed") },
		handle: (*Dispatcher).tasksOverdue,
	},
	{
		name:   "today",
		match:  func(u utterance) bool { return u.hasWord("today", "tonight") },
		handle: (*Dispatcher).tasksToday,
	},
	{
		name:   "week",
		match:  func(u utterance) bool { return u.hasWord("week") },
		handle: (*Dispatcher).tasksWeek,
	},
	{
		name:   "month",
		match:  func(u utterance) bool { return u.hasWord("month") },
		handle: (*Dispatcher).tasksMonth,
	},
	{
		name:   "upcoming",
		match:  func(u utterance) bool { return u.has("upcoming", "all tasks", "assignments", "deadlines") },
		handle: (*Dispatcher).tasksUpcoming,
	},
	{
		name:   "add_task",
		match:  func(u utterance) bool { return u.has("add task", "add a task", "new task", "create task") },
		handle: (*Dispatcher).startTask,
	},
	{
		name:   "activate",
		match:  func(u utterance) bool { return u.hasWord("activate") },
		handle: (*Dispatcher).enterPremiumCode,
	},
	{
		name:   "settings",
		match:  func(u utterance) bool { return u.hasWord("settings", "setting", "account") },
		handle: (*Dispatcher).settings,
	},
	{
		name:   "about",
		match:  func(u utterance) bool { return u.hasWord("about") },
		handle: (*Dispatcher).about,
	},
	{
		name:   "premium",
		match:  func(u utterance) bool { return u.hasWord("premium", "upgrade", "pro") },
		handle: (*Dispatcher).showPremium,
	},
	{
		name:   "connect",
		match:  func(u utterance) bool { return u.has("connect canvas") || u.hasWord("token") },
		handle: (*Dispatcher).requestToken,
	},
	{
		name:   "help",
		match:  func(u utterance) bool { return u.hasWord("help", "commands") },
		handle: (*Dispatcher).help,
	},
	{
		name:   "menu",
		match:  func(u utterance) bool { return u.hasWord("hi", "hello", "hey", "menu", "start", "yo", "sup") },
		handle: (*Dispatcher).mainMenu,
	},
}

// matchRule returns the first rule matching text, or nil.
func matchRule(text string) *rule {
	u := newUtterance(text)
	for i := range rules {
		if rules[i].match(u) {
			return &rules[i]
		}
	}
	return nil
}

func (d *Dispatcher) classify(ctx context.Context, user *domain.User, text string) error {
	r := matchRule(text)
	if r == nil {
		d.say(ctx, user.UserID, msgUnrecognized)
		d.showMainMenu(ctx, user.UserID)
		return nil
	}
	return r.handle(d, withEntryReason(ctx, "text:"+r.name), user)
}
