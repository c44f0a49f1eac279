package line

import (
	"encoding/json"
	"fmt"
)

// Webhook event types this service distinguishes. Every other type is
// treated as EventKindOther.
const (
	EventTypeMessage = "message"
)

// Message types with a handling path.
const (
	MessageTypeText  = "text"
	MessageTypeVideo = "video"
)

// EventKind classifies an inbound event for routing.
type EventKind int

const (
	// EventKindOther covers follow, join, postback and any unknown event.
	EventKindOther EventKind = iota
	// EventKindMessage is a message event with a message body.
	EventKindMessage
)

// WebhookPayload is the JSON body LINE posts to the webhook URL.
type WebhookPayload struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// Event is one item of the webhook's event list. It lives for a single
// webhook invocation and is never persisted.
type Event struct {
	Type           string   `json:"type"`
	ReplyToken     string   `json:"replyToken,omitempty"`
	Source         Source   `json:"source"`
	Message        *Message `json:"message,omitempty"`
	WebhookEventID string   `json:"webhookEventId,omitempty"`
	Timestamp      int64    `json:"timestamp,omitempty"`
}

// Source identifies who the event came from. UserID can be empty, e.g. for
// group events from users who have not consented to profile access.
type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// Message is a tagged variant keyed by Type. For video messages ID is the
// content identifier used to download the media.
type Message struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Kind returns the routing classification of the event.
func (e Event) Kind() EventKind {
	if e.Type == EventTypeMessage && e.Message != nil {
		return EventKindMessage
	}
	return EventKindOther
}

// UserID returns the sender's user id, or "" when unknown.
func (e Event) UserID() string {
	return e.Source.UserID
}

// HasReplyToken reports whether the event carries a redeemable reply token.
// The all-zero and all-f tokens LINE sends for the console's "Verify" button
// are not redeemable.
func (e Event) HasReplyToken() bool {
	switch e.ReplyToken {
	case "", "00000000000000000000000000000000", "ffffffffffffffffffffffffffffffff":
		return false
	}
	return true
}

// ParsePayload decodes a webhook body. A missing events array decodes to an
// empty list.
func ParsePayload(body []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("parse webhook payload: %w", err)
	}
	return &p, nil
}
