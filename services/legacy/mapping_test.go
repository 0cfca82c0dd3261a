package legacy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mknmagx/crmstack/internal/enum"
	"github.com/mknmagx/crmstack/internal/models"
)

func TestMapLegacyContact_FullRecord(t *testing.T) {
	record := &models.LegacyContactRequest{
		ID: "c1",
		Data: models.JSONMap{
			"firstName": "Ayşe",
			"lastName":  "Kaya",
			"email":     "Ayse@Example.com ",
			"phone":     "+90 555 111 22 33",
			"company":   "Kaya Gıda",
			"subject":   "Kutu baskısı",
			"message":   "Logolu kutu fiyatı rica ederim",
			"status":    "in-progress",
			"priority":  "low",
			"createdAt": "2023-03-15T10:00:00Z",
			"referrer":  "google-ads",
		},
	}

	mapped, err := mapLegacyContact(record)
	require.NoError(t, err)

	conversation := mapped.conversation
	assert.Equal(t, enum.ChannelContactForm, conversation.Channel)
	assert.Equal(t, "Ayşe Kaya", conversation.ContactName)
	assert.Equal(t, "ayse@example.com", conversation.ContactEmail)
	assert.Equal(t, "Kaya Gıda", conversation.CompanyName)
	assert.Equal(t, "Kutu baskısı", conversation.Subject)
	assert.Equal(t, enum.ConversationPending, conversation.Status)
	assert.Equal(t, enum.PriorityLow, conversation.Priority)
	assert.Equal(t, "Logolu kutu fiyatı rica ederim", mapped.messageText)

	// fields without a canonical home survive in metadata
	assert.Equal(t, "google-ads", conversation.ChannelMetadata["referrer"])
	assert.Equal(t, legacySystemContacts, conversation.ChannelMetadata["legacySystem"])
	assert.Equal(t, "2023-03-15T10:00:00Z", conversation.ChannelMetadata["originalCreatedAt"])
}

func TestMapLegacyContact_UnknownStatusFails(t *testing.T) {
	record := &models.LegacyContactRequest{
		ID:   "c1",
		Data: models.JSONMap{"name": "Test", "status": "whatever"},
	}

	_, err := mapLegacyContact(record)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whatever")
}

func TestMapLegacyContact_MissingStatusDefaultsOpen(t *testing.T) {
	record := &models.LegacyContactRequest{
		ID:   "c1",
		Data: models.JSONMap{"name": "Test"},
	}

	mapped, err := mapLegacyContact(record)
	require.NoError(t, err)
	assert.Equal(t, enum.ConversationOpen, mapped.conversation.Status)
	assert.Equal(t, enum.PriorityNormal, mapped.conversation.Priority)
}

func TestMapLegacyQuote_EpochTimestamp(t *testing.T) {
	record := &models.LegacyQuoteRequest{
		ID: "q1",
		Data: models.JSONMap{
			"contactInfo": map[string]interface{}{"firstName": "Ali", "lastName": "Veli"},
			"projectInfo": map[string]interface{}{"projectName": "Karton kutu", "details": "10x10x10, 1000 adet"},
			"metadata": map[string]interface{}{
				"status": "reviewing",
				// millisecond epoch, as newer legacy clients wrote it
				"createdAt": float64(1684140600000),
			},
		},
	}

	mapped, err := mapLegacyQuote(record)
	require.NoError(t, err)

	assert.Equal(t, enum.ConversationPending, mapped.conversation.Status)
	assert.Equal(t, "10x10x10, 1000 adet", mapped.messageText)
	require.NotNil(t, mapped.receivedAt)
	assert.Equal(t, time.Date(2023, 5, 15, 8, 50, 0, 0, time.UTC), mapped.receivedAt.UTC())
}

func TestMapLegacyQuote_UnparseableTimestampBecomesNil(t *testing.T) {
	record := &models.LegacyQuoteRequest{
		ID: "q1",
		Data: models.JSONMap{
			"contactInfo": map[string]interface{}{"firstName": "Ali"},
			"projectInfo": map[string]interface{}{"projectName": "Kutu"},
			"metadata":    map[string]interface{}{"createdAt": "not-a-date"},
		},
	}

	mapped, err := mapLegacyQuote(record)
	require.NoError(t, err)
	assert.Nil(t, mapped.receivedAt)
	_, hasOriginal := mapped.conversation.ChannelMetadata["originalCreatedAt"]
	assert.False(t, hasOriginal)
}

func TestMapLegacyEmail_SubjectNormalizedAndSnippetUsed(t *testing.T) {
	record := &models.LegacyEmailRecord{
		ID: "e1",
		Data: models.JSONMap{
			"fromEmail":  "musteri@example.com",
			"fromName":   "Mehmet Can",
			"subject":    "Re: Re: Numune talebi",
			"snippet":    "Numuneler ne zaman gelir?",
			"status":     "replied",
			"receivedAt": "2024-11-02 14:30:00",
		},
	}

	mapped, err := mapLegacyEmail(record)
	require.NoError(t, err)

	conversation := mapped.conversation
	assert.Equal(t, enum.ChannelMail, conversation.Channel)
	assert.Equal(t, "Numune talebi", conversation.Subject)
	assert.Equal(t, "Mehmet Can", conversation.ContactName)
	assert.Equal(t, enum.ConversationResolved, conversation.Status)
	assert.Equal(t, "Numuneler ne zaman gelir?", mapped.messageText)
	require.NotNil(t, mapped.receivedAt)
}

func TestMapPriority_Table(t *testing.T) {
	cases := map[string]enum.ConversationPriority{
		"low":    enum.PriorityLow,
		"normal": enum.PriorityNormal,
		"medium": enum.PriorityNormal,
		"high":   enum.PriorityUrgent,
		"urgent": enum.PriorityUrgent,
		"HIGH":   enum.PriorityUrgent,
	}
	for raw, want := range cases {
		got, err := mapPriority(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := mapPriority("asap")
	assert.Error(t, err)
}
