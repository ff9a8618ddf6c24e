package messenger

import "strings"

// WebhookPayload is the body of a Messenger webhook POST.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the events delivered for one page.
type Entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
}

// Party identifies a sender or recipient.
type Party struct {
	ID string `json:"id"`
}

// MessagingEvent is one element of entry[].messaging[].
type MessagingEvent struct {
	Sender    Party     `json:"sender"`
	Recipient Party     `json:"recipient"`
	Timestamp int64     `json:"timestamp"`
	Message   *Message  `json:"message,omitempty"`
	Postback  *Postback `json:"postback,omitempty"`
	Referral  *Referral `json:"referral,omitempty"`
	Delivery  *struct{} `json:"delivery,omitempty"`
	Read      *struct{} `json:"read,omitempty"`
}

// Message is an inbound message.
type Message struct {
	MID         string             `json:"mid"`
	Text        string             `json:"text"`
	IsEcho      bool               `json:"is_echo"`
	QuickReply  *QuickReplyPayload `json:"quick_reply,omitempty"`
	Attachments []Attachment       `json:"attachments,omitempty"`
}

// QuickReplyPayload carries the payload of a tapped quick reply.
type QuickReplyPayload struct {
	Payload string `json:"payload"`
}

// Attachment is a non-text message part.
type Attachment struct {
	Type string `json:"type"`
}

// Postback is a button or persistent menu tap.
type Postback struct {
	Title    string    `json:"title"`
	Payload  string    `json:"payload"`
	Referral *Referral `json:"referral,omitempty"`
}

// Referral is delivered when a user arrives through an m.me link or ad.
type Referral struct {
	Ref    string `json:"ref"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// InboundKind classifies a messaging event.
type InboundKind string

// Inbound kinds.
const (
	InboundText       InboundKind = "text"
	InboundPostback   InboundKind = "postback"
	InboundAttachment InboundKind = "attachment"
	InboundIgnored    InboundKind = "ignored"
)

// Inbound is a messaging event reduced to what the assistant acts on.
type Inbound struct {
	Kind     InboundKind
	SenderID string
	Text     string
	Payload  string
}

// Normalize reduces a messaging event. Quick reply taps and referrals are
// reported as postbacks; echoes, deliveries and reads are ignored.
func (e MessagingEvent) Normalize(getStartedPayload string) Inbound {
	in := Inbound{Kind: InboundIgnored, SenderID: e.Sender.ID}

	switch {
	case e.Message != nil && e.Message.IsEcho:
	case e.Message != nil && e.Message.QuickReply != nil && e.Message.QuickReply.Payload != "":
		in.Kind = InboundPostback
		in.Payload = e.Message.QuickReply.Payload
	case e.Message != nil && strings.TrimSpace(e.Message.Text) != "":
		in.Kind = InboundText
		in.Text = e.Message.Text
	case e.Message != nil && len(e.Message.Attachments) > 0:
		in.Kind = InboundAttachment
	case e.Postback != nil && e.Postback.Payload != "":
		in.Kind = InboundPostback
		in.Payload = e.Postback.Payload
	case e.Referral != nil:
		in.Kind = InboundPostback
		in.Payload = getStartedPayload
	}
	return in
}
