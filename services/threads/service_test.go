package threads

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mknmagx/crmstack/config"
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

type fakeThreadRepository struct {
	mu      sync.Mutex
	threads map[string]*models.EmailThread
	nextID  int
}

func newFakeThreadRepository() *fakeThreadRepository {
	return &fakeThreadRepository{threads: map[string]*models.EmailThread{}}
}

func (r *fakeThreadRepository) Create(ctx context.Context, thread *models.EmailThread) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	thread.ID = utils.GenerateNanoIDWithPrefix("thread", 16)
	thread.CreatedAt = utils.Now()
	copied := *thread
	r.threads[thread.ID] = &copied
	return thread.ID, nil
}

func (r *fakeThreadRepository) GetByID(ctx context.Context, id string) (*models.EmailThread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if thread, ok := r.threads[id]; ok {
		copied := *thread
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeThreadRepository) GetByProviderConversationID(ctx context.Context, providerConversationID string) (*models.EmailThread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, thread := range r.threads {
		if thread.ProviderConversationID == providerConversationID {
			copied := *thread
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeThreadRepository) GetActive(ctx context.Context) ([]*models.EmailThread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	active := make([]*models.EmailThread, 0)
	for _, thread := range r.threads {
		if thread.IsActive {
			copied := *thread
			active = append(active, &copied)
		}
	}
	return active, nil
}

func (r *fakeThreadRepository) SaveWatermark(ctx context.Context, threadID string, update interfaces.WatermarkUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	thread, ok := r.threads[threadID]
	if !ok {
		return errors.New("thread not found")
	}
	checkedAt := update.CheckedAt
	thread.LastCheckedAt = &checkedAt
	if update.ReplyDelta > 0 {
		thread.ReplyCount += update.ReplyDelta
	}
	if update.LastReplyAt != nil {
		lastReplyAt := *update.LastReplyAt
		thread.LastReplyAt = &lastReplyAt
	}
	return nil
}

func (r *fakeThreadRepository) Deactivate(ctx context.Context, threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if thread, ok := r.threads[threadID]; ok {
		thread.IsActive = false
	}
	return nil
}

type fakeConversationRepository struct {
	interfaces.ConversationRepository
	mu         sync.Mutex
	messages   []*models.ConversationMessage
	appendErrs map[string]error
}

func (r *fakeConversationRepository) AppendMessage(ctx context.Context, message *models.ConversationMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.appendErrs[message.ProviderMessageID]; err != nil {
		return err
	}
	r.messages = append(r.messages, message)
	return nil
}

type fakeMailClient struct {
	interfaces.MailProviderClient
	mu            sync.Mutex
	conversations map[string][]dto.ProviderMessage
	attachments   map[string][]dto.ProviderAttachment
	listErrs      map[string]error
}

func (c *fakeMailClient) ListMessagesByConversationID(ctx context.Context, providerConversationID string) ([]dto.ProviderMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.listErrs[providerConversationID]; err != nil {
		return nil, err
	}
	return c.conversations[providerConversationID], nil
}

func (c *fakeMailClient) ListAttachments(ctx context.Context, messageID string) ([]dto.ProviderAttachment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachments[messageID], nil
}

type fakeEventsPublisher struct {
	mu     sync.Mutex
	events []dto.ConversationEvent
}

func (p *fakeEventsPublisher) PublishConversationEvent(ctx context.Context, event dto.ConversationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakeEventsPublisher) PublishSyncCompletedEvent(ctx context.Context, event dto.SyncCompletedEvent) error {
	return nil
}

func (p *fakeEventsPublisher) Close() error { return nil }

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *fakeStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	s.objects[key] = data
	return nil
}

func (s *fakeStorage) Download(ctx context.Context, key string) ([]byte, error) { return nil, nil }
func (s *fakeStorage) Delete(ctx context.Context, key string) error            { return nil }
func (s *fakeStorage) GetPublicURL(key string) string                          { return "" }

type trackerFixture struct {
	service     interfaces.ThreadTrackerService
	threadRepo  *fakeThreadRepository
	convRepo    *fakeConversationRepository
	mailClient  *fakeMailClient
	events      *fakeEventsPublisher
	storage     *fakeStorage
	senderEmail string
}

func newTrackerFixture() *trackerFixture {
	threadRepo := newFakeThreadRepository()
	convRepo := &fakeConversationRepository{}
	mailClient := &fakeMailClient{
		conversations: map[string][]dto.ProviderMessage{},
		attachments:   map[string][]dto.ProviderAttachment{},
		listErrs:      map[string]error{},
	}
	events := &fakeEventsPublisher{}
	storage := &fakeStorage{}

	cfg := &config.MailProviderConfig{SenderAddress: "support@mknpack.com"}
	repos := &repository.Repositories{
		EmailThreadRepository:  threadRepo,
		ConversationRepository: convRepo,
	}

	return &trackerFixture{
		service:     NewThreadTrackerService(getLogger(), cfg, repos, mailClient, storage, events),
		threadRepo:  threadRepo,
		convRepo:    convRepo,
		mailClient:  mailClient,
		events:      events,
		storage:     storage,
		senderEmail: cfg.SenderAddress,
	}
}

func inboundReply(id, from string, receivedAt time.Time) dto.ProviderMessage {
	return dto.ProviderMessage{
		ID:               id,
		ConversationID:   "cnv-1",
		Subject:          "Re: Quote follow-up",
		Body:             dto.ProviderItemBody{ContentType: "HTML", Content: "<p>Fiyat uygun</p>"},
		From:             dto.ProviderRecipient{EmailAddress: dto.ProviderEmailAddress{Address: from}},
		ReceivedDateTime: receivedAt,
	}
}

func TestRegisterThread_CreatesActiveThread(t *testing.T) {
	f := newTrackerFixture()

	thread, err := f.service.RegisterThread(context.Background(), dto.SendMessageResult{
		MessageID:         "msg-1",
		ConversationID:    "cnv-1",
		InternetMessageID: "<out-1@mknpack.com>",
	}, "Quote follow-up", "conv_abc")
	require.NoError(t, err)

	assert.NotEmpty(t, thread.ID)
	assert.True(t, thread.IsActive)
	assert.Equal(t, "cnv-1", thread.ProviderConversationID)
	assert.Equal(t, "out-1@mknpack.com", thread.InternetMessageID)
	assert.Equal(t, "conv_abc", thread.ConversationID)
	require.NotNil(t, thread.LastCheckedAt)
	assert.Equal(t, 0, thread.ReplyCount)
}

func TestRegisterThread_SameProviderConversationReturnsExisting(t *testing.T) {
	f := newTrackerFixture()
	ctx := context.Background()

	first, err := f.service.RegisterThread(ctx, dto.SendMessageResult{MessageID: "msg-1", ConversationID: "cnv-1"}, "s", "")
	require.NoError(t, err)

	second, err := f.service.RegisterThread(ctx, dto.SendMessageResult{MessageID: "msg-2", ConversationID: "cnv-1"}, "s", "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestPollThread_CountsOnlyForeignMessagesAfterWatermark(t *testing.T) {
	f := newTrackerFixture()
	ctx := context.Background()

	thread, err := f.service.RegisterThread(ctx, dto.SendMessageResult{MessageID: "msg-out", ConversationID: "cnv-1"}, "s", "")
	require.NoError(t, err)

	watermark := *thread.LastCheckedAt
	f.mailClient.conversations["cnv-1"] = []dto.ProviderMessage{
		// the tracked outbound message itself
		inboundReply("msg-out", "customer@example.com", watermark.Add(time.Minute)),
		// sent from the console mailbox
		inboundReply("msg-own", f.senderEmail, watermark.Add(2*time.Minute)),
		// received before the watermark
		inboundReply("msg-old", "customer@example.com", watermark.Add(-time.Hour)),
		// a genuine new reply
		inboundReply("msg-new", "customer@example.com", watermark.Add(3*time.Minute)),
	}

	result, err := f.service.PollThread(ctx, thread)
	require.NoError(t, err)

	assert.True(t, result.HasNewReplies)
	require.Len(t, result.NewReplies, 1)
	assert.Equal(t, "msg-new", result.NewReplies[0].ID)
	assert.Equal(t, 1, result.TotalReplies)

	stored, err := f.threadRepo.GetByID(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ReplyCount)
	require.NotNil(t, stored.LastReplyAt)
	assert.True(t, stored.LastReplyAt.Equal(watermark.Add(3*time.Minute)))
}

func TestPollThread_WatermarkAdvancesWithoutReplies(t *testing.T) {
	f := newTrackerFixture()
	ctx := context.Background()

	thread, err := f.service.RegisterThread(ctx, dto.SendMessageResult{MessageID: "msg-out", ConversationID: "cnv-1"}, "s", "")
	require.NoError(t, err)
	initialCheckedAt := *thread.LastCheckedAt

	result, err := f.service.PollThread(ctx, thread)
	require.NoError(t, err)

	assert.False(t, result.HasNewReplies)
	assert.Empty(t, result.NewReplies)

	stored, err := f.threadRepo.GetByID(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.ReplyCount)
	assert.Nil(t, stored.LastReplyAt)
	require.NotNil(t, stored.LastCheckedAt)
	assert.False(t, stored.LastCheckedAt.Before(initialCheckedAt))
}

func TestPollThread_RepliesNotDoubleCounted(t *testing.T) {
	f := newTrackerFixture()
	ctx := context.Background()

	thread, err := f.service.RegisterThread(ctx, dto.SendMessageResult{MessageID: "msg-out", ConversationID: "cnv-1"}, "s", "")
	require.NoError(t, err)

	replyAt := thread.LastCheckedAt.Add(time.Millisecond)
	f.mailClient.conversations["cnv-1"] = []dto.ProviderMessage{
		inboundReply("msg-new", "customer@example.com", replyAt),
	}

	result, err := f.service.PollThread(ctx, thread)
	require.NoError(t, err)
	assert.True(t, result.HasNewReplies)

	// second poll with the advanced watermark sees the same provider state
	stored, err := f.threadRepo.GetByID(ctx, thread.ID)
	require.NoError(t, err)

	result, err = f.service.PollThread(ctx, stored)
	require.NoError(t, err)
	assert.False(t, result.HasNewReplies)

	stored, err = f.threadRepo.GetByID(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ReplyCount)
}

func TestPollThread_AppendsReplyToOwningConversation(t *testing.T) {
	f := newTrackerFixture()
	ctx := context.Background()

	thread, err := f.service.RegisterThread(ctx, dto.SendMessageResult{MessageID: "msg-out", ConversationID: "cnv-1"}, "s", "conv_abc")
	require.NoError(t, err)

	f.mailClient.conversations["cnv-1"] = []dto.ProviderMessage{
		inboundReply("msg-new", "customer@example.com", thread.LastCheckedAt.Add(time.Minute)),
	}

	_, err = f.service.PollThread(ctx, thread)
	require.NoError(t, err)

	require.Len(t, f.convRepo.messages, 1)
	message := f.convRepo.messages[0]
	assert.Equal(t, "conv_abc", message.ConversationID)
	assert.Equal(t, enum.MessageInbound, message.Direction)
	assert.Equal(t, "customer@example.com", message.FromAddress)
	assert.Equal(t, "msg-new", message.ProviderMessageID)
	assert.Equal(t, "Fiyat uygun", message.BodyPreview)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, dto.EventReplyReceived, f.events.events[0].Type)
	assert.Equal(t, "conv_abc", f.events.events[0].ConversationID)
}

func TestPollThread_FailedAppendIsRetriedOnNextPoll(t *testing.T) {
	f := newTrackerFixture()
	ctx := context.Background()

	thread, err := f.service.RegisterThread(ctx, dto.SendMessageResult{MessageID: "msg-out", ConversationID: "cnv-1"}, "s", "conv_abc")
	require.NoError(t, err)

	first := inboundReply("msg-r1", "customer@example.com", thread.LastCheckedAt.Add(time.Minute))
	second := inboundReply("msg-r2", "customer@example.com", thread.LastCheckedAt.Add(2*time.Minute))
	f.mailClient.conversations["cnv-1"] = []dto.ProviderMessage{first, second}
	f.convRepo.appendErrs = map[string]error{"msg-r2": errors.New("timeline unavailable")}

	result, err := f.service.PollThread(ctx, thread)
	require.NoError(t, err)
	require.Len(t, result.NewReplies, 1)
	assert.Equal(t, "msg-r1", result.NewReplies[0].ID)

	stored, err := f.threadRepo.GetByID(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ReplyCount)
	// watermark stays behind the reply that failed to land
	require.NotNil(t, stored.LastCheckedAt)
	assert.True(t, stored.LastCheckedAt.Before(second.ReceivedDateTime))

	f.convRepo.appendErrs = nil
	result, err = f.service.PollThread(ctx, stored)
	require.NoError(t, err)
	require.Len(t, result.NewReplies, 1)
	assert.Equal(t, "msg-r2", result.NewReplies[0].ID)

	stored, err = f.threadRepo.GetByID(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ReplyCount)
	require.Len(t, f.convRepo.messages, 2)
}

func TestPollAllActiveThreads_IsolatesFailures(t *testing.T) {
	f := newTrackerFixture()
	ctx := context.Background()

	healthy, err := f.service.RegisterThread(ctx, dto.SendMessageResult{MessageID: "msg-1", ConversationID: "cnv-healthy"}, "s", "")
	require.NoError(t, err)
	_, err = f.service.RegisterThread(ctx, dto.SendMessageResult{MessageID: "msg-2", ConversationID: "cnv-broken"}, "s", "")
	require.NoError(t, err)

	f.mailClient.conversations["cnv-healthy"] = []dto.ProviderMessage{
		inboundReply("msg-r", "customer@example.com", healthy.LastCheckedAt.Add(time.Minute)),
	}
	f.mailClient.listErrs["cnv-broken"] = errors.New("remote unavailable")

	err = f.service.PollAllActiveThreads(ctx)
	require.NoError(t, err)

	stored, err := f.threadRepo.GetByID(ctx, healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ReplyCount)
}
