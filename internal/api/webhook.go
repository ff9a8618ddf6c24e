package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/easely-bot/internal/conversation"
	"github.com/ashureev/easely-bot/internal/domain"
	"github.com/ashureev/easely-bot/internal/messenger"
	"github.com/ashureev/easely-bot/internal/metrics"
	"github.com/ashureev/easely-bot/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"
)

const (
	dispatchTimeout = 60 * time.Second
	maxLimiters     = 10000
	limiterIdleTTL  = 10 * time.Minute

	msgTextOnly = "Sorry, I can only read text messages for now. Please type your message or use the menu."
)

// Dispatcher handles one normalised inbound event.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID string, ev conversation.Event)
}

// Replier sends a plain text reply outside the conversation flow.
type Replier interface {
	SendText(ctx context.Context, userID, text string) error
}

// MessageLogger records inbound events.
type MessageLogger interface {
	LogMessage(ctx context.Context, entry domain.MessageLog) error
}

// WebhookConfig holds webhook settings.
type WebhookConfig struct {
	VerifyToken       string
	AppSecret         string
	GetStartedPayload string
	// RatePerMinute caps events per sender. Zero disables the limit.
	RatePerMinute int
}

// WebhookHandler serves the Messenger webhook. Events are acknowledged
// immediately and dispatched in the background.
type WebhookHandler struct {
	dispatcher Dispatcher
	replier    Replier
	logs       MessageLogger
	cfg        WebhookConfig

	limiters *expirable.LRU[string, *rate.Limiter]
	limMu    sync.Mutex

	wg  conc.WaitGroup
	now func() time.Time
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(d Dispatcher, replier Replier, logs MessageLogger, cfg WebhookConfig) *WebhookHandler {
	if cfg.GetStartedPayload == "" {
		cfg.GetStartedPayload = conversation.CodeGetStarted
	}
	return &WebhookHandler{
		dispatcher: d,
		replier:    replier,
		logs:       logs,
		cfg:        cfg,
		limiters:   expirable.NewLRU[string, *rate.Limiter](maxLimiters, nil, limiterIdleTTL),
		now:        time.Now,
	}
}

// RegisterRoutes mounts GET and POST /webhook.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Get("/webhook", h.Verify)
	r.With(middleware.VerifySignature(h.cfg.AppSecret)).Post("/webhook", h.Receive)
}

// Verify answers the platform's subscription handshake.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || token == "" || token != h.cfg.VerifyToken {
		slog.Warn("Webhook verification failed", "mode", mode)
		Text(w, http.StatusForbidden, "Forbidden")
		return
	}
	slog.Info("Webhook verified")
	Text(w, http.StatusOK, challenge)
}

// Receive acknowledges a webhook delivery and dispatches its events.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var payload messenger.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Warn("Failed to decode webhook payload", "error", err)
		Text(w, http.StatusBadRequest, "Bad Request")
		return
	}

	// Events from one sender keep their delivery order.
	bySender := make(map[string][]messenger.Inbound)
	var order []string
	for _, entry := range payload.Entry {
		for _, event := range entry.Messaging {
			in := event.Normalize(h.cfg.GetStartedPayload)
			metrics.WebhookEventsTotal.WithLabelValues(string(in.Kind)).Inc()
			if in.Kind == messenger.InboundIgnored || in.SenderID == "" {
				continue
			}
			if !h.allow(in.SenderID) {
				metrics.RateLimitedTotal.Inc()
				slog.Warn("Sender rate limited", "user_id", in.SenderID)
				continue
			}
			if _, ok := bySender[in.SenderID]; !ok {
				order = append(order, in.SenderID)
			}
			bySender[in.SenderID] = append(bySender[in.SenderID], in)
		}
	}

	base := context.WithoutCancel(r.Context())
	for _, sender := range order {
		events := bySender[sender]
		h.wg.Go(func() {
			ctx, cancel := context.WithTimeout(base, dispatchTimeout)
			defer cancel()
			for _, in := range events {
				h.handle(ctx, in)
			}
		})
	}

	Text(w, http.StatusOK, "EVENT_RECEIVED")
}

func (h *WebhookHandler) handle(ctx context.Context, in messenger.Inbound) {
	content := in.Text
	if in.Kind == messenger.InboundPostback {
		content = in.Payload
	}
	if h.logs != nil {
		err := h.logs.LogMessage(ctx, domain.MessageLog{
			UserID:    in.SenderID,
			Kind:      string(in.Kind),
			Content:   content,
			CreatedAt: h.now(),
		})
		if err != nil {
			slog.Warn("Failed to log inbound message", "user_id", in.SenderID, "error", err)
		}
	}

	switch in.Kind {
	case messenger.InboundText:
		h.dispatcher.Dispatch(ctx, in.SenderID, conversation.TextEvent(in.Text))
	case messenger.InboundPostback:
		h.dispatcher.Dispatch(ctx, in.SenderID, conversation.PostbackEvent(in.Payload))
	case messenger.InboundAttachment:
		if err := h.replier.SendText(ctx, in.SenderID, msgTextOnly); err != nil {
			slog.Warn("Failed to reply to attachment", "user_id", in.SenderID, "error", err)
		}
	}
}

func (h *WebhookHandler) allow(senderID string) bool {
	if h.cfg.RatePerMinute <= 0 {
		return true
	}
	h.limMu.Lock()
	lim, ok := h.limiters.Get(senderID)
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(h.cfg.RatePerMinute)), h.cfg.RatePerMinute)
		h.limiters.Add(senderID, lim)
	}
	h.limMu.Unlock()
	return lim.Allow()
}

// Wait blocks until every in-flight dispatch has finished.
func (h *WebhookHandler) Wait() {
	h.wg.Wait()
}
