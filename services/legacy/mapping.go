package legacy

import (
	"strings"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/pkg/errors"

	"github.com/mknmagx/crmstack/internal/enum"
	"github.com/mknmagx/crmstack/internal/models"
	"github.com/mknmagx/crmstack/internal/utils"
)

// Legacy system identifiers stored in channelMetadata so an imported
// conversation can always be traced back to its collection.
const (
	legacySystemContacts = "legacy_contact_requests"
	legacySystemQuotes   = "legacy_quote_requests"
	legacySystemEmails   = "legacy_email_records"
)

// Status vocabularies drifted independently per collection, so each one gets
// its own lookup table. A non-empty value missing from the table is a hard
// per-record error; silently defaulting would mask data-quality problems.
var contactStatusMap = map[string]enum.ConversationStatus{
	"new":         enum.ConversationOpen,
	"in-progress": enum.ConversationPending,
	"answered":    enum.ConversationResolved,
	"closed":      enum.ConversationClosed,
}

var quoteStatusMap = map[string]enum.ConversationStatus{
	"new":       enum.ConversationOpen,
	"reviewing": enum.ConversationPending,
	"quoted":    enum.ConversationResolved,
	"won":       enum.ConversationClosed,
	"lost":      enum.ConversationClosed,
}

var emailStatusMap = map[string]enum.ConversationStatus{
	"unread":   enum.ConversationOpen,
	"read":     enum.ConversationPending,
	"replied":  enum.ConversationResolved,
	"archived": enum.ConversationClosed,
}

var priorityMap = map[string]enum.ConversationPriority{
	"low":    enum.PriorityLow,
	"normal": enum.PriorityNormal,
	"medium": enum.PriorityNormal,
	"high":   enum.PriorityUrgent,
	"urgent": enum.PriorityUrgent,
}

func mapStatus(table map[string]enum.ConversationStatus, raw string) (enum.ConversationStatus, error) {
	if raw == "" {
		return enum.ConversationOpen, nil
	}
	status, ok := table[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", errors.Errorf("unknown legacy status %q", raw)
	}
	return status, nil
}

func mapPriority(raw string) (enum.ConversationPriority, error) {
	if raw == "" {
		return enum.PriorityNormal, nil
	}
	priority, ok := priorityMap[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return "", errors.Errorf("unknown legacy priority %q", raw)
	}
	return priority, nil
}

// cleanEmail normalizes an address through syntax validation. Invalid
// addresses are kept verbatim; losing the raw value would be worse than
// storing a malformed one.
func cleanEmail(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	validation := mailvalidate.ValidateEmailSyntax(raw)
	if validation.IsValid {
		return validation.CleanEmail
	}
	return raw
}

func stringField(data models.JSONMap, key string) string {
	if raw, ok := data[key]; ok {
		if s, ok := raw.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func mapField(data models.JSONMap, key string) models.JSONMap {
	if raw, ok := data[key]; ok {
		if m, ok := raw.(map[string]interface{}); ok {
			return models.JSONMap(m)
		}
	}
	return models.JSONMap{}
}

func firstTimestamp(data models.JSONMap, keys ...string) *time.Time {
	for _, key := range keys {
		if raw, ok := data[key]; ok {
			if t := utils.NormalizeLegacyTimestamp(raw); t != nil {
				return t
			}
		}
	}
	return nil
}

// mappedRecord is a mapping function's output: the canonical conversation
// plus the record's free-text body, appended as the first timeline message
// when present.
type mappedRecord struct {
	conversation *models.Conversation
	messageText  string
	receivedAt   *time.Time
}

// mapLegacyContact maps one contact-form submission. Expected shape:
// {name|firstName+lastName, email, phone, company, subject, message,
// status, priority, createdAt}.
func mapLegacyContact(record *models.LegacyContactRequest) (*mappedRecord, error) {
	data := record.Data

	status, err := mapStatus(contactStatusMap, stringField(data, "status"))
	if err != nil {
		return nil, err
	}
	priority, err := mapPriority(stringField(data, "priority"))
	if err != nil {
		return nil, err
	}

	name := stringField(data, "name")
	if name == "" {
		name = utils.JoinNonEmpty(stringField(data, "firstName"), stringField(data, "lastName"))
	}

	subject := stringField(data, "subject")
	if subject == "" {
		subject = utils.JoinNonEmpty("Contact request from", name)
	}

	originalCreatedAt := firstTimestamp(data, "createdAt", "timestamp", "date")

	metadata := models.JSONMap{"legacySystem": legacySystemContacts}
	if originalCreatedAt != nil {
		metadata["originalCreatedAt"] = originalCreatedAt.Format(time.RFC3339)
	}
	preserveUnmapped(metadata, data,
		"name", "firstName", "lastName", "email", "phone", "company",
		"subject", "message", "status", "priority", "createdAt", "timestamp", "date")

	sourceType := enum.SourceContact
	sourceID := record.ID

	return &mappedRecord{
		conversation: &models.Conversation{
			Channel:         enum.ChannelContactForm,
			SourceType:      &sourceType,
			SourceID:        &sourceID,
			Subject:         subject,
			ContactName:     name,
			ContactEmail:    cleanEmail(stringField(data, "email")),
			ContactPhone:    stringField(data, "phone"),
			CompanyName:     stringField(data, "company"),
			Status:          status,
			Priority:        priority,
			ChannelMetadata: metadata,
		},
		messageText: stringField(data, "message"),
		receivedAt:  originalCreatedAt,
	}, nil
}

// mapLegacyQuote maps one quote request. Expected shape:
// {contactInfo: {firstName, lastName, email, phone, company},
// projectInfo: {projectName, details}, metadata: {status, priority, createdAt}}.
func mapLegacyQuote(record *models.LegacyQuoteRequest) (*mappedRecord, error) {
	data := record.Data
	contactInfo := mapField(data, "contactInfo")
	projectInfo := mapField(data, "projectInfo")
	recordMeta := mapField(data, "metadata")

	status, err := mapStatus(quoteStatusMap, stringField(recordMeta, "status"))
	if err != nil {
		return nil, err
	}
	priority, err := mapPriority(stringField(recordMeta, "priority"))
	if err != nil {
		return nil, err
	}

	name := utils.JoinNonEmpty(stringField(contactInfo, "firstName"), stringField(contactInfo, "lastName"))
	subject := stringField(projectInfo, "projectName")
	if subject == "" {
		subject = utils.JoinNonEmpty("Quote request from", name)
	}

	originalCreatedAt := firstTimestamp(recordMeta, "createdAt", "timestamp")
	if originalCreatedAt == nil {
		originalCreatedAt = firstTimestamp(data, "createdAt")
	}

	metadata := models.JSONMap{"legacySystem": legacySystemQuotes}
	if originalCreatedAt != nil {
		metadata["originalCreatedAt"] = originalCreatedAt.Format(time.RFC3339)
	}
	for key, value := range projectInfo {
		if key == "projectName" || key == "details" {
			continue
		}
		metadata[key] = value
	}
	preserveUnmapped(metadata, data, "contactInfo", "projectInfo", "metadata", "createdAt")

	sourceType := enum.SourceQuote
	sourceID := record.ID

	return &mappedRecord{
		conversation: &models.Conversation{
			Channel:         enum.ChannelQuoteForm,
			SourceType:      &sourceType,
			SourceID:        &sourceID,
			Subject:         subject,
			ContactName:     name,
			ContactEmail:    cleanEmail(stringField(contactInfo, "email")),
			ContactPhone:    stringField(contactInfo, "phone"),
			CompanyName:     stringField(contactInfo, "company"),
			Status:          status,
			Priority:        priority,
			ChannelMetadata: metadata,
		},
		messageText: stringField(projectInfo, "details"),
		receivedAt:  originalCreatedAt,
	}, nil
}

// mapLegacyEmail maps one archived mail record. Expected shape:
// {fromEmail|from, fromName, subject, snippet|body, status, receivedAt}.
func mapLegacyEmail(record *models.LegacyEmailRecord) (*mappedRecord, error) {
	data := record.Data

	status, err := mapStatus(emailStatusMap, stringField(data, "status"))
	if err != nil {
		return nil, err
	}
	priority, err := mapPriority(stringField(data, "priority"))
	if err != nil {
		return nil, err
	}

	fromEmail := stringField(data, "fromEmail")
	if fromEmail == "" {
		fromEmail = stringField(data, "from")
	}

	subject := utils.NormalizeEmailSubject(stringField(data, "subject"))
	if subject == "" {
		subject = "(no subject)"
	}

	originalCreatedAt := firstTimestamp(data, "receivedAt", "createdAt", "date")

	metadata := models.JSONMap{"legacySystem": legacySystemEmails}
	if originalCreatedAt != nil {
		metadata["originalCreatedAt"] = originalCreatedAt.Format(time.RFC3339)
	}
	preserveUnmapped(metadata, data,
		"fromEmail", "from", "fromName", "subject", "snippet", "body",
		"status", "priority", "receivedAt", "createdAt", "date")

	messageText := stringField(data, "body")
	if messageText == "" {
		messageText = stringField(data, "snippet")
	}

	sourceType := enum.SourceEmail
	sourceID := record.ID

	return &mappedRecord{
		conversation: &models.Conversation{
			Channel:         enum.ChannelMail,
			SourceType:      &sourceType,
			SourceID:        &sourceID,
			Subject:         subject,
			ContactName:     stringField(data, "fromName"),
			ContactEmail:    cleanEmail(fromEmail),
			Status:          status,
			Priority:        priority,
			ChannelMetadata: metadata,
		},
		messageText: messageText,
		receivedAt:  originalCreatedAt,
	}, nil
}

// preserveUnmapped copies every field without a canonical home into the
// conversation metadata verbatim.
func preserveUnmapped(metadata models.JSONMap, data models.JSONMap, mappedKeys ...string) {
	mapped := make(map[string]struct{}, len(mappedKeys))
	for _, key := range mappedKeys {
		mapped[key] = struct{}{}
	}
	for key, value := range data {
		if _, ok := mapped[key]; ok {
			continue
		}
		metadata[key] = value
	}
}
