package dto

import "time"

const (
	EventConversationCreated = "conversation.created"
	EventReplyReceived       = "conversation.reply_received"
	EventSyncCompleted       = "sync.completed"
)

// ConversationEvent is published on the crmstack exchange whenever the sync
// core creates or extends a conversation.
type ConversationEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId"`
	Channel        string    `json:"channel"`
	OccurredAt     time.Time `json:"occurredAt"`
}

type SyncCompletedEvent struct {
	Type        string       `json:"type"`
	TriggeredBy string       `json:"triggeredBy"`
	Summary     *SyncSummary `json:"summary"`
	OccurredAt  time.Time    `json:"occurredAt"`
}
