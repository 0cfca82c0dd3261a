package dto

// SendEmailRequest is the console's outbound mail payload. ConversationID is
// optional; when present the sent message is appended to that conversation's
// timeline and the registered thread points back at it.
type SendEmailRequest struct {
	To             []string `json:"to" binding:"required"`
	Cc             []string `json:"cc"`
	Subject        string   `json:"subject" binding:"required"`
	BodyHTML       string   `json:"bodyHtml"`
	BodyText       string   `json:"bodyText"`
	ConversationID string   `json:"conversationId"`
}

type SendEmailResponse struct {
	ThreadID          string `json:"threadId"`
	ConversationID    string `json:"conversationId"`
	ProviderMessageID string `json:"providerMessageId"`
	InternetMessageID string `json:"internetMessageId"`
}
