// Package realtime provides WebSocket-based real-time subscriptions.
package realtime

import (
	"encoding/json"
	"time"
)

// MessageType represents the type of WebSocket message.
type MessageType string

const (
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypePing        MessageType = "ping"

	MessageTypeConnected MessageType = "connected"
	MessageTypeSnapshot  MessageType = "snapshot"
	MessageTypeDelta     MessageType = "delta"
	MessageTypeError     MessageType = "error"
	MessageTypePong      MessageType = "pong"
)

// Message is the base WebSocket message structure.
type Message struct {
	ID      string          `json:"id,omitempty"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload is the payload for subscribe messages. Collection holds
// the ID of the form whose response feed the client wants to watch.
type SubscribePayload struct {
	Collection string `json:"collection"`
	Limit      int    `json:"limit,omitempty"`
}

// UnsubscribePayload is the payload for unsubscribe messages.
type UnsubscribePayload struct {
	SubscriptionID string `json:"subscription_id"`
}

// ConnectedPayload is the payload for connected messages.
type ConnectedPayload struct {
	ClientID string `json:"client_id"`
}

// SnapshotPayload is the payload for snapshot messages.
type SnapshotPayload struct {
	SubscriptionID string `json:"subscription_id"`
	Docs           []any  `json:"docs"`
	Total          int64  `json:"total"`
}

// DeltaPayload is the payload for delta messages.
type DeltaPayload struct {
	SubscriptionID string  `json:"subscription_id"`
	Changes        Changes `json:"changes"`
}

// Changes represents the set of changes in a delta.
type Changes struct {
	Inserts []any    `json:"inserts,omitempty"`
	Updates []any    `json:"updates,omitempty"`
	Deletes []string `json:"deletes,omitempty"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SubscriptionState represents the current state of a subscription.
type SubscriptionState string

const (
	SubscriptionStateActive   SubscriptionState = "active"
	SubscriptionStatePaused   SubscriptionState = "paused"
	SubscriptionStateCanceled SubscriptionState = "canceled"
)

// Subscription represents an active subscription to one form's live feed.
type Subscription struct {
	ID         string            `json:"id"`
	ClientID   string            `json:"client_id"`
	Collection string            `json:"collection"`
	Limit      int               `json:"limit,omitempty"`
	State      SubscriptionState `json:"state"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewSubscription creates a new subscription from a subscribe payload.
func NewSubscription(clientID string, payload *SubscribePayload) *Subscription {
	limit := payload.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	return &Subscription{
		ClientID:   clientID,
		Collection: payload.Collection,
		Limit:      limit,
		State:      SubscriptionStateActive,
		CreatedAt:  time.Now(),
	}
}

// ClientState represents the state of a connected client.
type ClientState string

const (
	ClientStateConnected    ClientState = "connected"
	ClientStateDisconnected ClientState = "disconnected"
)

// ErrorCode represents an error code for WebSocket errors.
type ErrorCode string

const (
	ErrorCodeInvalidMessage     ErrorCode = "INVALID_MESSAGE"
	ErrorCodeInvalidPayload     ErrorCode = "INVALID_PAYLOAD"
	ErrorCodeCollectionNotFound ErrorCode = "COLLECTION_NOT_FOUND"
	ErrorCodeInvalidFilter      ErrorCode = "INVALID_FILTER"
	ErrorCodeSubscriptionLimit  ErrorCode = "SUBSCRIPTION_LIMIT_REACHED"
	ErrorCodeInternalError      ErrorCode = "INTERNAL_ERROR"
)
