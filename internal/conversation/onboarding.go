package conversation

import (
	"context"
	"fmt"

	"github.com/ashureev/easely-bot/internal/domain"
	"github.com/ashureev/easely-bot/internal/messenger"
)

func (d *Dispatcher) getStarted(ctx context.Context, user *domain.User) error {
	if user.NeedsOnboarding() {
		state, err := d.state(ctx, user.UserID)
		if err != nil {
			return err
		}
		return d.resumeOnboarding(ctx, user, state)
	}
	d.say(ctx, user.UserID, msgWelcomeBack)
	d.showMainMenu(ctx, user.UserID)
	return nil
}

// resumeOnboarding re-sends the prompt for the consent step the user is on.
func (d *Dispatcher) resumeOnboarding(ctx context.Context, user *domain.User, state domain.State) error {
	switch state {
	case domain.StatePrivacyAgreed:
		d.askTerms(ctx, user.UserID)
	case domain.StateTermsAgreed:
		d.askFinalConsent(ctx, user.UserID)
	default:
		d.startOnboarding(ctx, user.UserID)
	}
	return nil
}

func (d *Dispatcher) startOnboarding(ctx context.Context, userID string) {
	d.say(ctx, userID, msgIntro)
	d.say(ctx, userID, msgFeatures)
	d.ask(ctx, userID, msgPrivacyPrompt, []messenger.QuickReply{
		messenger.NewQuickReply("📜 Privacy Policy", CodePrivacyPolicyRead),
		messenger.NewQuickReply("❌ Not now", CodePrivacyDecline),
	})
}

func (d *Dispatcher) privacyPolicyRead(ctx context.Context, user *domain.User) error {
	d.buttons(ctx, user.UserID, msgPrivacyLink, messenger.URLButton("Read Privacy Policy", d.opts.PrivacyPolicyURL))
	d.deferPrompt(user.UserID, msgPrivacyAgreePrompt, []messenger.QuickReply{
		messenger.NewQuickReply("✅ I Agree", CodePrivacyAgree),
		messenger.NewQuickReply("❌ Decline", CodePrivacyDecline),
	})
	return nil
}

func (d *Dispatcher) privacyAgree(ctx context.Context, user *domain.User) error {
	d.cancelPrompt(user.UserID)
	if err := d.setState(ctx, user.UserID, domain.StatePrivacyAgreed); err != nil {
		return err
	}
	d.askTerms(ctx, user.UserID)
	return nil
}

func (d *Dispatcher) askTerms(ctx context.Context, userID string) {
	d.ask(ctx, userID, msgTermsPrompt, []messenger.QuickReply{
		messenger.NewQuickReply("📋 Terms of Use", CodeTermsRead),
		messenger.NewQuickReply("❌ Not now", CodeTermsDecline),
	})
}

func (d *Dispatcher) termsRead(ctx context.Context, user *domain.User) error {
	d.buttons(ctx, user.UserID, msgTermsLink, messenger.URLButton("Read Terms of Use", d.opts.TermsURL))
	d.deferPrompt(user.UserID, msgTermsAgreePrompt, []messenger.QuickReply{
		messenger.NewQuickReply("✅ I Agree", CodeTermsAgree),
		messenger.NewQuickReply("❌ Decline", CodeTermsDecline),
	})
	return nil
}

func (d *Dispatcher) termsAgree(ctx context.Context, user *domain.User) error {
	d.cancelPrompt(user.UserID)
	if err := d.setState(ctx, user.UserID, domain.StateTermsAgreed); err != nil {
		return err
	}
	d.askFinalConsent(ctx, user.UserID)
	return nil
}

func (d *Dispatcher) askFinalConsent(ctx context.Context, userID string) {
	d.ask(ctx, userID, msgFinalConsent, []messenger.QuickReply{
		messenger.NewQuickReply("✅ Let's go", CodeFinalConsentAgree),
		messenger.NewQuickReply("❌ Not now", CodeFinalConsentDecline),
	})
}

func (d *Dispatcher) finalConsentAgree(ctx context.Context, user *domain.User) error {
	d.cancelPrompt(user.UserID)
	if _, err := d.store.UpdateUser(ctx, user.UserID, domain.UserUpdate{Onboarded: domain.Ptr(true)}); err != nil {
		return fmt.Errorf("mark onboarded: %w", err)
	}
	user.Onboarded = true

	if err := d.setState(ctx, user.UserID, domain.StateOnboardingComplete); err != nil {
		return err
	}
	if err := d.enterFlow(ctx, user.UserID, domain.StateWaitingForToken); err != nil {
		return err
	}
	d.ask(ctx, user.UserID, msgTokenRequest, []messenger.QuickReply{
		messenger.NewQuickReply("I know how", CodeTokenKnowHow),
		messenger.NewQuickReply("Need help", CodeTokenNeedHelp),
	})
	return nil
}

func (d *Dispatcher) declineConsent(ctx context.Context, user *domain.User) error {
	d.cancelPrompt(user.UserID)
	d.say(ctx, user.UserID, msgDeclined)
	return nil
}

// deferPrompt sends the agree/decline question after the reading delay.
// A later prompt for the same user replaces this one.
func (d *Dispatcher) deferPrompt(userID, text string, replies []messenger.QuickReply) {
	if d.scheduler == nil {
		return
	}
	d.scheduler.Schedule(userID, d.opts.PromptDelay, func(ctx context.Context) {
		d.ask(ctx, userID, text, replies)
	})
}

func (d *Dispatcher) cancelPrompt(userID string) {
	if d.scheduler != nil {
		d.scheduler.Cancel(userID)
	}
}
