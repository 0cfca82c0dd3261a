package legacy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mknmagx/crmstack/dto"
	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/enum"
	"github.com/mknmagx/crmstack/internal/logger"
	"github.com/mknmagx/crmstack/internal/models"
	"github.com/mknmagx/crmstack/internal/repository"
	"github.com/mknmagx/crmstack/internal/utils"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

type fakeConversationRepository struct {
	interfaces.ConversationRepository
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	messages      []*models.ConversationMessage
}

func newFakeConversationRepository() *fakeConversationRepository {
	return &fakeConversationRepository{conversations: map[string]*models.Conversation{}}
}

func (r *fakeConversationRepository) Create(ctx context.Context, conversation *models.Conversation) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conversation.ID == "" {
		conversation.ID = utils.GenerateNanoIDWithPrefix("conv", 16)
	}
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = utils.Now()
	}
	if key := conversation.SourceRefKey(); key != "" {
		for _, existing := range r.conversations {
			if existing.SourceRefKey() == key {
				return "", errors.New("duplicate source ref")
			}
		}
	}
	copied := *conversation
	r.conversations[conversation.ID] = &copied
	return conversation.ID, nil
}

func (r *fakeConversationRepository) ListSourceRefKeys(ctx context.Context) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := map[string]struct{}{}
	for _, conversation := range r.conversations {
		if key := conversation.SourceRefKey(); key != "" {
			keys[key] = struct{}{}
		}
	}
	return keys, nil
}

func (r *fakeConversationRepository) List(ctx context.Context, filter interfaces.ConversationListFilter) ([]*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	listed := make([]*models.Conversation, 0, len(r.conversations))
	for _, conversation := range r.conversations {
		if filter.Channel != "" && conversation.Channel != filter.Channel {
			continue
		}
		copied := *conversation
		listed = append(listed, &copied)
	}
	return listed, nil
}

func (r *fakeConversationRepository) AppendMessage(ctx context.Context, message *models.ConversationMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conversation, ok := r.conversations[message.ConversationID]
	if !ok {
		return errors.New("conversation not found")
	}
	r.messages = append(r.messages, message)
	conversation.MessageCount++
	if conversation.LastMessageAt == nil || message.ReceivedAt.After(*conversation.LastMessageAt) {
		receivedAt := message.ReceivedAt
		conversation.LastMessageAt = &receivedAt
	}
	return nil
}

func (r *fakeConversationRepository) bySourceRef(sourceType enum.SourceType, sourceID string) *models.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := models.SourceRefKey(sourceType, sourceID)
	for _, conversation := range r.conversations {
		if conversation.SourceRefKey() == key {
			return conversation
		}
	}
	return nil
}

type fakeLegacyContactRepository struct {
	records []*models.LegacyContactRequest
}

func (r *fakeLegacyContactRepository) Create(ctx context.Context, record *models.LegacyContactRequest) error {
	r.records = append(r.records, record)
	return nil
}

func (r *fakeLegacyContactRepository) List(ctx context.Context) ([]*models.LegacyContactRequest, error) {
	return r.records, nil
}

type fakeLegacyQuoteRepository struct {
	records []*models.LegacyQuoteRequest
}

func (r *fakeLegacyQuoteRepository) Create(ctx context.Context, record *models.LegacyQuoteRequest) error {
	r.records = append(r.records, record)
	return nil
}

func (r *fakeLegacyQuoteRepository) List(ctx context.Context) ([]*models.LegacyQuoteRequest, error) {
	return r.records, nil
}

type fakeLegacyEmailRepository struct {
	records []*models.LegacyEmailRecord
}

func (r *fakeLegacyEmailRepository) Create(ctx context.Context, record *models.LegacyEmailRecord) error {
	r.records = append(r.records, record)
	return nil
}

func (r *fakeLegacyEmailRepository) List(ctx context.Context) ([]*models.LegacyEmailRecord, error) {
	return r.records, nil
}

type mergerFixture struct {
	service  interfaces.LegacyMergerService
	convRepo *fakeConversationRepository
	contacts *fakeLegacyContactRepository
	quotes   *fakeLegacyQuoteRepository
	emails   *fakeLegacyEmailRepository
}

func newMergerFixture() *mergerFixture {
	convRepo := newFakeConversationRepository()
	contacts := &fakeLegacyContactRepository{}
	quotes := &fakeLegacyQuoteRepository{}
	emails := &fakeLegacyEmailRepository{}

	repos := &repository.Repositories{
		ConversationRepository:  convRepo,
		LegacyContactRepository: contacts,
		LegacyQuoteRepository:   quotes,
		LegacyEmailRepository:   emails,
	}

	return &mergerFixture{
		service:  NewLegacyMergerService(getLogger(), repos, nil),
		convRepo: convRepo,
		contacts: contacts,
		quotes:   quotes,
		emails:   emails,
	}
}

func contactRecord(id string, data models.JSONMap) *models.LegacyContactRequest {
	return &models.LegacyContactRequest{ID: id, Data: data}
}

func TestImport_QuoteScenario(t *testing.T) {
	f := newMergerFixture()
	f.quotes.records = []*models.LegacyQuoteRequest{{
		ID: "q1",
		Data: models.JSONMap{
			"contactInfo": map[string]interface{}{
				"firstName": "Ali",
				"lastName":  "Veli",
				"email":     "a@x.com",
			},
			"projectInfo": map[string]interface{}{
				"projectName": "Ambalaj",
			},
			"metadata": map[string]interface{}{
				"status":   "new",
				"priority": "high",
			},
		},
	}}

	result, err := f.service.ImportFromLegacySystems(context.Background(), dto.DefaultImportOptions())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Quotes.Imported)
	assert.Empty(t, result.Quotes.Errors)

	conversation := f.convRepo.bySourceRef(enum.SourceQuote, "q1")
	require.NotNil(t, conversation)
	assert.Equal(t, enum.ChannelQuoteForm, conversation.Channel)
	assert.Equal(t, "Ambalaj", conversation.Subject)
	assert.Equal(t, "Ali Veli", conversation.ContactName)
	assert.Equal(t, "a@x.com", conversation.ContactEmail)
	assert.Equal(t, enum.ConversationOpen, conversation.Status)
	assert.Equal(t, enum.PriorityUrgent, conversation.Priority)
	require.NotNil(t, conversation.SourceType)
	assert.Equal(t, enum.SourceQuote, *conversation.SourceType)
	require.NotNil(t, conversation.SourceID)
	assert.Equal(t, "q1", *conversation.SourceID)
}

func TestImport_DedupIdempotence(t *testing.T) {
	f := newMergerFixture()
	f.contacts.records = []*models.LegacyContactRequest{
		contactRecord("c1", models.JSONMap{"name": "Ayşe Kaya", "email": "ayse@example.com", "message": "Fiyat bilgisi", "status": "new"}),
		contactRecord("c2", models.JSONMap{"name": "Mehmet Can", "email": "mehmet@example.com", "status": "answered"}),
	}
	f.emails.records = []*models.LegacyEmailRecord{
		{ID: "e1", Data: models.JSONMap{"fromEmail": "info@example.com", "subject": "Numune", "status": "read"}},
	}

	ctx := context.Background()
	first, err := f.service.ImportFromLegacySystems(ctx, dto.DefaultImportOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Contacts.Imported)
	assert.Equal(t, 1, first.Emails.Imported)

	second, err := f.service.ImportFromLegacySystems(ctx, dto.DefaultImportOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Contacts.Imported)
	assert.Equal(t, 2, second.Contacts.Skipped)
	assert.Equal(t, 0, second.Emails.Imported)
	assert.Equal(t, 1, second.Emails.Skipped)
	assert.Empty(t, second.Contacts.Errors)

	assert.Len(t, f.convRepo.conversations, 3)
}

func TestImport_PartialFailureIsolation(t *testing.T) {
	f := newMergerFixture()
	f.contacts.records = []*models.LegacyContactRequest{
		contactRecord("c1", models.JSONMap{"name": "Birinci", "status": "new"}),
		contactRecord("c2", models.JSONMap{"name": "İkinci", "status": "banana"}),
		contactRecord("c3", models.JSONMap{"name": "Üçüncü", "status": "closed"}),
	}

	result, err := f.service.ImportFromLegacySystems(context.Background(), dto.DefaultImportOptions())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Contacts.Imported)
	require.Len(t, result.Contacts.Errors, 1)
	assert.Equal(t, "c2", result.Contacts.Errors[0].RecordID)
	assert.Contains(t, result.Contacts.Errors[0].Message, "banana")

	assert.NotNil(t, f.convRepo.bySourceRef(enum.SourceContact, "c1"))
	assert.Nil(t, f.convRepo.bySourceRef(enum.SourceContact, "c2"))
	assert.NotNil(t, f.convRepo.bySourceRef(enum.SourceContact, "c3"))
}

func TestImport_SourceToggles(t *testing.T) {
	f := newMergerFixture()
	f.contacts.records = []*models.LegacyContactRequest{
		contactRecord("c1", models.JSONMap{"name": "Ayşe"}),
	}
	f.emails.records = []*models.LegacyEmailRecord{
		{ID: "e1", Data: models.JSONMap{"fromEmail": "info@example.com", "subject": "Numune"}},
	}

	options := dto.ImportOptions{Contacts: true, SkipExisting: true}
	result, err := f.service.ImportFromLegacySystems(context.Background(), options)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Contacts.Imported)
	assert.Equal(t, 0, result.Emails.Imported)
	assert.Len(t, f.convRepo.conversations, 1)
}

func TestImport_InitialMessageAppended(t *testing.T) {
	f := newMergerFixture()
	submittedAt := time.Date(2023, 5, 14, 9, 30, 0, 0, time.UTC)
	f.contacts.records = []*models.LegacyContactRequest{
		contactRecord("c1", models.JSONMap{
			"name":      "Ayşe Kaya",
			"email":     "ayse@example.com",
			"message":   "500 adet kutu fiyatı alabilir miyim?",
			"status":    "new",
			"createdAt": submittedAt.Format(time.RFC3339),
		}),
	}

	_, err := f.service.ImportFromLegacySystems(context.Background(), dto.DefaultImportOptions())
	require.NoError(t, err)

	require.Len(t, f.convRepo.messages, 1)
	message := f.convRepo.messages[0]
	assert.Equal(t, enum.MessageInbound, message.Direction)
	assert.Equal(t, "ayse@example.com", message.FromAddress)
	assert.True(t, message.ReceivedAt.Equal(submittedAt))

	conversation := f.convRepo.bySourceRef(enum.SourceContact, "c1")
	require.NotNil(t, conversation)
	assert.Equal(t, 1, conversation.MessageCount)
}

func TestGetUnifiedInbox_DisplayTimestampHeuristic(t *testing.T) {
	f := newMergerFixture()
	ctx := context.Background()

	t0 := time.Date(2022, 1, 10, 12, 0, 0, 0, time.UTC)
	t1 := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	// migrated long after submission, never answered
	sourceType := enum.SourceContact
	sourceID := "old"
	_, err := f.convRepo.Create(ctx, &models.Conversation{
		Channel:      enum.ChannelContactForm,
		SourceType:   &sourceType,
		SourceID:     &sourceID,
		Subject:      "Eski talep",
		MessageCount: 1,
		ChannelMetadata: models.JSONMap{
			"originalCreatedAt": t0.Format(time.RFC3339),
		},
	})
	require.NoError(t, err)

	answered := &models.Conversation{
		Channel:       enum.ChannelMail,
		Subject:       "Cevaplanan talep",
		MessageCount:  2,
		LastMessageAt: &t1,
	}
	_, err = f.convRepo.Create(ctx, answered)
	require.NoError(t, err)

	entries, err := f.service.GetUnifiedInbox(ctx, dto.InboxOptions{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "Cevaplanan talep", entries[0].Conversation.Subject)
	assert.True(t, entries[0].DisplayAt.Equal(t1))
	assert.Equal(t, "Eski talep", entries[1].Conversation.Subject)
	assert.True(t, entries[1].DisplayAt.Equal(t0))
}

func TestGetUnifiedInbox_LegacyOverlay(t *testing.T) {
	f := newMergerFixture()
	ctx := context.Background()

	f.contacts.records = []*models.LegacyContactRequest{
		contactRecord("c-migrated", models.JSONMap{"name": "Göçmüş", "status": "new"}),
		contactRecord("c-pending", models.JSONMap{"name": "Bekleyen", "status": "new"}),
	}

	// migrate only the first record
	sourceType := enum.SourceContact
	sourceID := "c-migrated"
	_, err := f.convRepo.Create(ctx, &models.Conversation{
		Channel:    enum.ChannelContactForm,
		SourceType: &sourceType,
		SourceID:   &sourceID,
		Subject:    "Göçmüş talep",
	})
	require.NoError(t, err)

	entries, err := f.service.GetUnifiedInbox(ctx, dto.InboxOptions{IncludeLegacy: true})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var legacyCount int
	for _, entry := range entries {
		if entry.IsLegacy {
			legacyCount++
			assert.Equal(t, "Bekleyen", entry.Conversation.ContactName)
		}
	}
	assert.Equal(t, 1, legacyCount)
}

func TestGetUnifiedInbox_LimitApplied(t *testing.T) {
	f := newMergerFixture()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.convRepo.Create(ctx, &models.Conversation{
			Channel: enum.ChannelContactForm,
			Subject: "Talep",
		})
		require.NoError(t, err)
	}

	entries, err := f.service.GetUnifiedInbox(ctx, dto.InboxOptions{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}
