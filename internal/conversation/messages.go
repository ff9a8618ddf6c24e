package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/easely-bot/internal/domain"
	"github.com/ashureev/easely-bot/internal/messenger"
)

// Postback codes.
const (
	CodeGetStarted          = "GET_STARTED"
	CodePrivacyPolicyRead   = "PRIVACY_POLICY_READ"
	CodePrivacyAgree        = "PRIVACY_AGREE"
	CodePrivacyDecline      = "PRIVACY_DECLINE"
	CodeTermsRead           = "TERMS_READ"
	CodeTermsAgree          = "TERMS_AGREE"
	CodeTermsDecline        = "TERMS_DECLINE"
	CodeFinalConsentAgree   = "FINAL_CONSENT_AGREE"
	CodeFinalConsentDecline = "FINAL_CONSENT_DECLINE"

	CodeConnectCanvas    = "CONNECT_CANVAS"
	CodeTokenKnowHow     = "TOKEN_KNOW_HOW"
	CodeTokenNeedHelp    = "TOKEN_NEED_HELP"
	CodeTokenReady       = "TOKEN_READY"
	CodeTokenTutorial    = "TOKEN_TUTORIAL"
	CodeWatchVideo       = "WATCH_VIDEO"
	CodeDisconnectCanvas = "DISCONNECT_CANVAS"

	CodeTasksToday   = "GET_TASKS_TODAY"
	CodeTasksWeek    = "GET_TASKS_WEEK"
	CodeTasksMonth   = "GET_TASKS_MONTH"
	CodeTasksOverdue = "GET_TASKS_OVERDUE"
	CodeTasksAll     = "GET_TASKS_ALL"

	CodeAddTask         = "ADD_NEW_TASK"
	CodeDateToday       = "DATE_TODAY"
	CodeDateTomorrow    = "DATE_TOMORROW"
	CodeDateNextWeek    = "DATE_NEXT_WEEK"
	CodeDateCustom      = "DATE_CUSTOM"
	CodeTimePrefix      = "TIME_"
	CodeDescriptionSkip = "DESCRIPTION_SKIP"
	CodeCancelFlow      = "CANCEL_FLOW"

	CodeMainMenu         = "MAIN_MENU"
	CodeShowSettings     = "SHOW_SETTINGS"
	CodeShowHelp         = "SHOW_HELP"
	CodeShowAbout        = "SHOW_ABOUT"
	CodeShowPremium      = "SHOW_PREMIUM"
	CodeSkipPremium      = "SKIP_PREMIUM"
	CodePremiumEnterCode = "PREMIUM_ENTER_CODE"
)

const (
	msgApology      = "Sorry, something went wrong on my side. Please try again in a moment."
	msgUnknownCode  = "Sorry, I didn't understand that option."
	msgUnrecognized = "I'm not sure what you mean. Try \"today\", \"this week\", \"overdue\" or \"add task\", or pick an option below."
	msgMainMenu     = "What would you like to do?"
	msgWelcomeBack  = "Welcome back to Easely! 👋"

	msgIntro    = "Hi! I'm Easely, your personal Canvas assistant. 🎨\n\nI help students stay organized with assignments, deadlines and study planning."
	msgFeatures = "Here's what I can do:\n\n" +
		"🔥 Free\n" +
		"• See what's due today, this week or overdue\n" +
		"• Sync your Canvas assignments\n" +
		"• Add a few manual tasks each month\n\n" +
		"💎 Premium\n" +
		"• Unlimited manual tasks\n" +
		"• Priority support"
	msgPrivacyPrompt      = "🔒 To get started, please review our Privacy Policy so you know how we protect your data."
	msgPrivacyLink        = "Here's our Privacy Policy. Take your time reading it."
	msgPrivacyAgreePrompt = "Do you agree to our Privacy Policy?"
	msgTermsPrompt        = "Great! Now please review our Terms of Use."
	msgTermsLink          = "Here are our Terms of Use."
	msgTermsAgreePrompt   = "Do you agree to our Terms of Use?"
	msgFinalConsent       = "Perfect! By accepting our Privacy Policy and Terms of Use, you let me read your Canvas assignments and help you keep track of them.\n\nReady to connect your Canvas account?"
	msgDeclined           = "No problem! Come back anytime when you're ready. 👋"

	msgTokenRequest  = "To sync with Canvas I need your Canvas access token. I use it only to read your courses and assignments and to add tasks you create to your Canvas calendar."
	msgTokenPrompt   = "Please paste your Canvas access token here.\n\nIf your school uses a different Canvas site, send it as: https://your-school.instructure.com YOUR_TOKEN\n\nType \"cancel\" to stop."
	msgTokenHelp     = "Here's how to get your token:\n\n1. Log in to Canvas\n2. Open Account ➜ Settings\n3. Scroll to Approved Integrations\n4. Tap \"+ New Access Token\"\n5. Give it a name like \"Easely\" and generate it\n6. Copy the token and paste it here"
	msgTokenVideo    = "This short video walks through creating a token."
	msgTokenTooShort = "That doesn't look like a Canvas token. Tokens are long strings of letters and numbers. Please paste the full token, or type \"cancel\"."
	msgTokenChecking = "Checking your token with Canvas... ⏳"
	msgTokenInvalid  = "Canvas didn't accept that token. Please double-check it and paste it again, or type \"cancel\"."
	msgTokenNoReach  = "I couldn't reach Canvas just now. Please paste your token again in a moment, or type \"cancel\"."
	msgTokenWaiting  = "I'm still waiting for your Canvas token. Paste it here, or type \"cancel\"."
	msgTokenCanceled = "Token setup cancelled. You can connect Canvas anytime from Settings."
	msgTokenSaved    = "✅ Connected! Hi %s, your Canvas account is now linked and I can fetch your assignments."
	msgTokenReplaced = "✅ Token updated! Hi %s, I'll use your new Canvas token from now on."
	msgDisconnected  = "Your Canvas account has been disconnected and the token deleted."

	msgNotConnected      = "Your Canvas account isn't connected yet. Connect it so I can fetch your assignments."
	msgCredentialExpired = "Canvas rejected your saved token. It may have expired. Please connect again with a new token."
	msgQueryFailed       = "I couldn't load your assignments right now. Please try again in a few minutes."
	msgEmptyToday        = "🎉 Nothing due today. Enjoy your day!"
	msgEmptyWeek         = "🎉 Nothing due in the next 7 days."
	msgEmptyMonth        = "🎉 Nothing else due this month."
	msgEmptyOverdue      = "✅ You're all caught up. Nothing overdue!"
	msgEmptyUpcoming     = "📭 No upcoming assignments in the next %d days."
	msgMoreNotShown      = "...and %d more not shown."

	msgAskTitle         = "Let's add a task! ✍️ What's the title?"
	msgTitleTooShort    = "Please give the task a title of at least 2 characters, or type \"cancel\"."
	msgAskDate          = "What day is this task due?"
	msgAskCustomDate    = "Type the date, for example \"next friday\", \"12/25/2025\" or \"Dec 25\"."
	msgDateInvalid      = "I couldn't read that date. Try \"tomorrow\", \"next monday\", \"12/25/2025\" or \"Dec 25\"."
	msgDatePast         = "That date has already passed. Please pick today or a later date."
	msgAskTime          = "What time is the deadline? Pick one or type a time like \"2:30 PM\"."
	msgTimeInvalid      = "I couldn't read that time. Try \"2:30 PM\", \"14:30\" or \"5pm\"."
	msgAskDescription   = "Any notes for this task? Type them, or tap Skip."
	msgTaskCancelled    = "Task creation cancelled."
	msgTaskFailed       = "❌ I couldn't create your task: %s"
	msgTaskCreated      = "✅ Task added!\n\n📌 %s\n🗓️ Due %s"
	msgTaskSynced       = "It's also on your Canvas calendar."
	msgTaskLocal        = "Connect Canvas to also see it on your Canvas calendar."
	msgTaskLimitReached = "You've reached the free limit of %d manual tasks this month. Upgrade to Premium for unlimited tasks."

	msgPremiumInfo        = "💎 Easely Premium\n\n• Unlimited manual tasks\n• Priority support\n\nAlready have an activation code? Tap \"I have a code\"."
	msgPremiumLink        = "Get Premium here:"
	msgPremiumAskCode     = "Please type your activation code, or \"cancel\"."
	msgPremiumInvalid     = "That code isn't valid. Please check it and try again, or type \"cancel\"."
	msgPremiumActivated   = "🎉 Premium activated! Enjoy unlimited tasks."
	msgPremiumAlready     = "You're already on Premium. Thanks for the support! 💎"
	msgPremiumUnavailable = "Premium activation isn't available right now."
	msgPremiumCancelled   = "Activation cancelled."
	msgSkipPremium        = "No worries! You can upgrade anytime from the menu."

	msgHelp = "Here's what you can ask me:\n\n" +
		"• \"today\" - tasks due today\n" +
		"• \"this week\" - the next 7 days\n" +
		"• \"this month\" - the rest of the month\n" +
		"• \"overdue\" - tasks past their deadline\n" +
		"• \"upcoming\" - everything coming up\n" +
		"• \"add task\" - create a personal task\n" +
		"• \"settings\" - your connection and plan\n\n" +
		"Type \"cancel\" anytime to stop what you're doing."
	msgAbout = "Easely helps you keep track of Canvas deadlines right here in Messenger. Assignments come straight from Canvas, and you can add your own tasks too."
)

// Titles on the persistent menu and quick replies.
const (
	titleDueToday = "Due Today"
	titleThisWeek = "This Week"
	titleOverdue  = "Overdue"
	titleUpcoming = "Upcoming"
	titleAddTask  = "Add Task"
)

func mainMenuReplies() []messenger.QuickReply {
	return []messenger.QuickReply{
		messenger.NewQuickReply(titleDueToday, CodeTasksToday),
		messenger.NewQuickReply(titleThisWeek, CodeTasksWeek),
		messenger.NewQuickReply(titleOverdue, CodeTasksOverdue),
		messenger.NewQuickReply(titleUpcoming, CodeTasksAll),
		messenger.NewQuickReply(titleAddTask, CodeAddTask),
	}
}

func datePickerReplies() []messenger.QuickReply {
	return []messenger.QuickReply{
		messenger.NewQuickReply("Today", CodeDateToday),
		messenger.NewQuickReply("Tomorrow", CodeDateTomorrow),
		messenger.NewQuickReply("Next Week", CodeDateNextWeek),
		messenger.NewQuickReply("Choose Date...", CodeDateCustom),
		messenger.NewQuickReply("Cancel", CodeCancelFlow),
	}
}

func timePickerReplies() []messenger.QuickReply {
	return []messenger.QuickReply{
		messenger.NewQuickReply("9:00 AM", "TIME_09_00"),
		messenger.NewQuickReply("12:00 PM", "TIME_12_00"),
		messenger.NewQuickReply("3:00 PM", "TIME_15_00"),
		messenger.NewQuickReply("5:00 PM", "TIME_17_00"),
		messenger.NewQuickReply("11:59 PM", "TIME_23_59"),
		messenger.NewQuickReply("Cancel", CodeCancelFlow),
	}
}

func cancelReply() []messenger.QuickReply {
	return []messenger.QuickReply{messenger.NewQuickReply("Cancel", CodeCancelFlow)}
}

func connectReplies() []messenger.QuickReply {
	return []messenger.QuickReply{
		messenger.NewQuickReply("🔗 Connect Canvas", CodeConnectCanvas),
		messenger.NewQuickReply("Main Menu", CodeMainMenu),
	}
}

// PersistentMenu is the page's burger menu.
func PersistentMenu(upgradeURL string) []messenger.MenuItem {
	items := []messenger.MenuItem{
		{Type: "postback", Title: "My Tasks", Payload: CodeMainMenu},
		{Type: "postback", Title: "Canvas Setup", Payload: CodeTokenTutorial},
		{Type: "postback", Title: "Settings", Payload: CodeShowSettings},
		{Type: "postback", Title: "Help & Support", Payload: CodeShowHelp},
	}
	if upgradeURL != "" {
		items = append(items, messenger.MenuItem{Type: "web_url", Title: "Upgrade to Premium", URL: upgradeURL})
	} else {
		items = append(items, messenger.MenuItem{Type: "postback", Title: "Premium", Payload: CodeShowPremium})
	}
	return items
}

// Greeting is shown before a user's first message.
const Greeting = "Hi {{user_first_name}}! 👋 I'm Easely, your Canvas assistant. I'll help you keep track of assignments and deadlines. Tap Get Started to begin! 🎯"

const (
	dueLayout   = "Mon, Jan 2 at 3:04 PM"
	shortLayout = "Mon, Jan 2"
)

// formatAssignments renders a header and up to limit items.
func formatAssignments(header string, items []domain.Assignment, limit int, now time.Time, overdue bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d)\n", header, len(items))

	shown := items
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for i, a := range shown {
		fmt.Fprintf(&b, "\n%d. %s\n", i+1, a.Title)
		if a.CourseName != "" {
			fmt.Fprintf(&b, "   📚 %s\n", a.CourseName)
		}
		due := a.DueAt.In(now.Location())
		if overdue {
			fmt.Fprintf(&b, "   ⏰ Was due %s (%s ago)\n", due.Format(shortLayout), humanizeAgo(now.Sub(due)))
		} else {
			fmt.Fprintf(&b, "   ⏰ %s\n", due.Format(dueLayout))
		}
	}
	if hidden := len(items) - len(shown); hidden > 0 {
		b.WriteString("\n")
		fmt.Fprintf(&b, msgMoreNotShown, hidden)
	}
	return strings.TrimRight(b.String(), "\n")
}

func humanizeAgo(d time.Duration) string {
	switch {
	case d < time.Hour:
		return "less than an hour"
	case d < 24*time.Hour:
		h := int(d.Hours())
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}
