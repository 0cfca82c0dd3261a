package dto

import "time"

// Wire shapes for the remote mail provider's REST API.

type ProviderEmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type ProviderRecipient struct {
	EmailAddress ProviderEmailAddress `json:"emailAddress"`
}

type ProviderItemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type ProviderMessage struct {
	ID                string              `json:"id"`
	ConversationID    string              `json:"conversationId"`
	InternetMessageID string              `json:"internetMessageId"`
	Subject           string              `json:"subject"`
	BodyPreview       string              `json:"bodyPreview"`
	Body              ProviderItemBody    `json:"body"`
	From              ProviderRecipient   `json:"from"`
	ToRecipients      []ProviderRecipient `json:"toRecipients"`
	CcRecipients      []ProviderRecipient `json:"ccRecipients"`
	ReceivedDateTime  time.Time           `json:"receivedDateTime"`
	SentDateTime      time.Time           `json:"sentDateTime"`
	HasAttachments    bool                `json:"hasAttachments"`
	IsRead            bool                `json:"isRead"`
	IsDraft           bool                `json:"isDraft"`
}

type ProviderMessageList struct {
	Value []ProviderMessage `json:"value"`
}

type ProviderAttachment struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
	ContentBytes string `json:"contentBytes"`
}

type ProviderAttachmentList struct {
	Value []ProviderAttachment `json:"value"`
}

type SendMessageRequest struct {
	Subject     string   `json:"subject"`
	BodyHTML    string   `json:"bodyHtml"`
	BodyText    string   `json:"bodyText"`
	To          []string `json:"to"`
	Cc          []string `json:"cc"`
	SaveToSent  bool     `json:"saveToSent"`
	Correlation string   `json:"correlation"` // owning conversation id, if any
}

// SendMessageResult carries the identifiers the thread tracker needs to
// register the outbound message for reply polling.
type SendMessageResult struct {
	MessageID         string `json:"messageId"`
	ConversationID    string `json:"conversationId"`
	InternetMessageID string `json:"internetMessageId"`
}
