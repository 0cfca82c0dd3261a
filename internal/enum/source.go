package enum

// SourceType identifies the legacy collection or live channel a conversation
// was imported from; together with the source id it forms the dedup key.
type SourceType string

const (
	SourceContact  SourceType = "contact"
	SourceQuote    SourceType = "quote"
	SourceEmail    SourceType = "email"
	SourceMail     SourceType = "mail"
	SourceWhatsapp SourceType = "whatsapp"
)

func (t SourceType) String() string {
	return string(t)
}

type MessageDirection string

const (
	MessageInbound  MessageDirection = "inbound"
	MessageOutbound MessageDirection = "outbound"
)

func (t MessageDirection) String() string {
	return string(t)
}
