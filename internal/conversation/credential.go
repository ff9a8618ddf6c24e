package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/ashureev/easely-bot/internal/domain"
	"github.com/ashureev/easely-bot/internal/messenger"
)

const minTokenLength = 10

// Replies that are clearly not a pasted token.
var tokenStoplist = map[string]bool{
	"l": true, "ok": true, "okay": true, "yes": true, "no": true,
	"hello": true, "hi": true, "hey": true, "thanks": true,
}

func (d *Dispatcher) requestToken(ctx context.Context, user *domain.User) error {
	if err := d.enterFlow(ctx, user.UserID, domain.StateWaitingForToken); err != nil {
		return err
	}
	d.ask(ctx, user.UserID, msgTokenPrompt, cancelReply())
	return nil
}

func (d *Dispatcher) tokenHelp(ctx context.Context, user *domain.User) error {
	d.ask(ctx, user.UserID, msgTokenHelp, []messenger.QuickReply{
		messenger.NewQuickReply("🎥 Watch video", CodeWatchVideo),
		messenger.NewQuickReply("I have my token", CodeTokenReady),
	})
	return nil
}

func (d *Dispatcher) watchVideo(ctx context.Context, user *domain.User) error {
	if d.opts.TutorialURL == "" {
		return d.tokenHelp(ctx, user)
	}
	d.buttons(ctx, user.UserID, msgTokenVideo,
		messenger.URLButton("Watch tutorial", d.opts.TutorialURL),
		messenger.PostbackButton("I have my token", CodeTokenReady),
	)
	return nil
}

func (d *Dispatcher) disconnectCanvas(ctx context.Context, user *domain.User) error {
	_, err := d.store.UpdateUser(ctx, user.UserID, domain.UserUpdate{
		Credential:        domain.Ptr(""),
		CredentialBaseURL: domain.Ptr(""),
		CanvasUserID:      domain.Ptr(""),
	})
	if err != nil {
		return fmt.Errorf("disconnect canvas: %w", err)
	}
	slog.Info("Canvas disconnected", "user_id", user.UserID)
	d.say(ctx, user.UserID, msgDisconnected)
	d.showMainMenu(ctx, user.UserID)
	return nil
}

// handleTokenInput runs every event received in waiting_for_token.
func (d *Dispatcher) handleTokenInput(ctx context.Context, user *domain.User, ev Event) error {
	if ev.Kind == EventPostback {
		switch ev.Code {
		case CodeTokenNeedHelp, CodeTokenTutorial:
			return d.tokenHelp(ctx, user)
		case CodeWatchVideo:
			return d.watchVideo(ctx, user)
		case CodeTokenKnowHow, CodeTokenReady, CodeConnectCanvas:
			d.ask(ctx, user.UserID, msgTokenPrompt, cancelReply())
			return nil
		case CodeMainMenu, CodeCancelFlow:
			return d.cancelToken(ctx, user)
		}
		d.ask(ctx, user.UserID, msgTokenWaiting, cancelReply())
		return nil
	}

	input := strings.TrimSpace(ev.Text)
	if isCancel(input) {
		return d.cancelToken(ctx, user)
	}

	token, baseURL := splitCredential(input)
	if utf8.RuneCountInString(token) < minTokenLength || tokenStoplist[strings.ToLower(token)] {
		d.say(ctx, user.UserID, msgTokenTooShort)
		return nil
	}

	d.say(ctx, user.UserID, msgTokenChecking)
	identity, err := d.records.TestCredential(ctx, token, baseURL)
	if err != nil {
		if errors.Is(err, domain.ErrCredentialRejected) {
			d.say(ctx, user.UserID, msgTokenInvalid)
			return nil
		}
		slog.Warn("Token check failed", "user_id", user.UserID, "error", err)
		d.say(ctx, user.UserID, msgTokenNoReach)
		return nil
	}

	if baseURL == "" {
		baseURL = d.opts.DefaultBaseURL
	}
	hadCredential := user.HasCredential()
	now := d.now()
	_, err = d.store.UpdateUser(ctx, user.UserID, domain.UserUpdate{
		Onboarded:         domain.Ptr(true),
		Credential:        domain.Ptr(token),
		CredentialBaseURL: domain.Ptr(baseURL),
		CanvasUserID:      domain.Ptr(identity.ID),
		LastSyncAt:        domain.Ptr(now),
	})
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}

	if err := d.setState(ctx, user.UserID, domain.StateTokenVerified); err != nil {
		return err
	}
	if err := d.clearState(ctx, user.UserID); err != nil {
		return err
	}

	slog.Info("Canvas connected", "user_id", user.UserID, "canvas_user_id", identity.ID, "replaced", hadCredential)
	msg := msgTokenSaved
	if hadCredential {
		msg = msgTokenReplaced
	}
	d.say(ctx, user.UserID, fmt.Sprintf(msg, displayName(identity)))
	d.showMainMenu(ctx, user.UserID)
	return nil
}

func (d *Dispatcher) cancelToken(ctx context.Context, user *domain.User) error {
	if err := d.clearState(ctx, user.UserID); err != nil {
		return err
	}
	d.say(ctx, user.UserID, msgTokenCanceled)
	d.showMainMenu(ctx, user.UserID)
	return nil
}

// splitCredential accepts either a bare token or "<https url> <token>".
func splitCredential(input string) (token, baseURL string) {
	fields := strings.Fields(input)
	if len(fields) != 2 {
		return input, ""
	}
	u, err := url.Parse(fields[0])
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return input, ""
	}
	return fields[1], "https://" + u.Host
}

func displayName(id *domain.Identity) string {
	if id == nil || id.Name == "" {
		return "there"
	}
	return id.Name
}
