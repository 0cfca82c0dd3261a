package enum

type ConversationChannel string

const (
	ChannelContactForm  ConversationChannel = "contact-form"
	ChannelQuoteForm    ConversationChannel = "quote-form"
	ChannelMail         ConversationChannel = "mail"
	ChannelPhone        ConversationChannel = "phone"
	ChannelChatPlatform ConversationChannel = "chat-platform"
	ChannelManual       ConversationChannel = "manual"
)

func (t ConversationChannel) String() string {
	return string(t)
}

type ConversationStatus string

const (
	ConversationOpen     ConversationStatus = "open"
	ConversationPending  ConversationStatus = "pending"
	ConversationResolved ConversationStatus = "resolved"
	ConversationClosed   ConversationStatus = "closed"
)

func (t ConversationStatus) String() string {
	return string(t)
}

type ConversationPriority string

const (
	PriorityLow    ConversationPriority = "low"
	PriorityNormal ConversationPriority = "normal"
	PriorityHigh   ConversationPriority = "high"
	PriorityUrgent ConversationPriority = "urgent"
)

func (t ConversationPriority) String() string {
	return string(t)
}
