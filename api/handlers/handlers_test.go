package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mknmagx/crmstack/dto"
	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/enum"
	"github.com/mknmagx/crmstack/internal/models"
	"github.com/mknmagx/crmstack/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSyncStateRepository struct {
	interfaces.SyncStateRepository
	status *models.SyncStatus
	lock   *models.SyncLock
}

func (r *fakeSyncStateRepository) GetStatus(ctx context.Context) (*models.SyncStatus, error) {
	return r.status, nil
}

func (r *fakeSyncStateRepository) GetLock(ctx context.Context) (*models.SyncLock, error) {
	return r.lock, nil
}

type fakeOrchestrator struct {
	interfaces.SyncOrchestratorService
	operators []string
	result    *dto.SyncResult
}

func (o *fakeOrchestrator) ManualSync(ctx context.Context, operatorID string) (*dto.SyncResult, error) {
	o.operators = append(o.operators, operatorID)
	return o.result, nil
}

type fakeWhatsappRepository struct {
	interfaces.WhatsappMessageRepository
	created []*models.WhatsappMessage
}

func (r *fakeWhatsappRepository) Create(ctx context.Context, message *models.WhatsappMessage) error {
	message.ID = "wamsg_test"
	r.created = append(r.created, message)
	return nil
}

type fakeConversationRepository struct {
	interfaces.ConversationRepository
	conversations map[string]*models.Conversation
	updates       []interfaces.ConversationUpdate
}

func (r *fakeConversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	return r.conversations[id], nil
}

func (r *fakeConversationRepository) Update(ctx context.Context, id string, update interfaces.ConversationUpdate) error {
	r.updates = append(r.updates, update)
	return nil
}

func performRequest(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var payload *bytes.Buffer
	if body != nil {
		raw, _ := json.Marshal(body)
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSyncHandler_StatusReturnsLastPass(t *testing.T) {
	syncedAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	repos := &repository.Repositories{
		SyncStateRepository: &fakeSyncStateRepository{
			status: &models.SyncStatus{LastSyncAt: &syncedAt, LastSyncBy: "operator-7", SyncCount: 42},
		},
	}
	handler := NewSyncHandler(nil, repos)

	r := gin.New()
	r.GET("/v1/sync/status", handler.Status())

	w := performRequest(r, http.MethodGet, "/v1/sync/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var response dto.SyncStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "operator-7", response.LastSyncBy)
	assert.Equal(t, int64(42), response.SyncCount)
}

func TestSyncHandler_TriggerRequiresOperator(t *testing.T) {
	handler := NewSyncHandler(&fakeOrchestrator{}, &repository.Repositories{})

	r := gin.New()
	r.POST("/v1/sync", handler.Trigger())

	w := performRequest(r, http.MethodPost, "/v1/sync", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSyncHandler_TriggerLockedReturnsConflict(t *testing.T) {
	orchestrator := &fakeOrchestrator{
		result: &dto.SyncResult{Skipped: true, SkipReason: dto.SkipReasonSyncLocked},
	}
	handler := NewSyncHandler(orchestrator, &repository.Repositories{})

	r := gin.New()
	r.POST("/v1/sync", handler.Trigger())

	w := performRequest(r, http.MethodPost, "/v1/sync", triggerSyncRequest{OperatorID: "operator-7"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, []string{"operator-7"}, orchestrator.operators)
}

func TestWebhooksHandler_WhatsappStagesMessage(t *testing.T) {
	waRepo := &fakeWhatsappRepository{}
	handler := NewWebhooksHandler(&repository.Repositories{WhatsappMessageRepository: waRepo})

	r := gin.New()
	r.POST("/v1/webhooks/whatsapp", handler.Whatsapp())

	w := performRequest(r, http.MethodPost, "/v1/webhooks/whatsapp", gin.H{
		"waContactId": "905551112233",
		"contactName": "Ali Veli",
		"body":        "Sipariş durumu nedir?",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Len(t, waRepo.created, 1)
	assert.Equal(t, "905551112233", waRepo.created[0].WaContactID)
	assert.False(t, waRepo.created[0].SentAt.IsZero())
}

func TestWebhooksHandler_WhatsappRejectsMissingContact(t *testing.T) {
	handler := NewWebhooksHandler(&repository.Repositories{WhatsappMessageRepository: &fakeWhatsappRepository{}})

	r := gin.New()
	r.POST("/v1/webhooks/whatsapp", handler.Whatsapp())

	w := performRequest(r, http.MethodPost, "/v1/webhooks/whatsapp", gin.H{"body": "merhaba"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConversationsHandler_UpdateRejectsUnknownStatus(t *testing.T) {
	convRepo := &fakeConversationRepository{
		conversations: map[string]*models.Conversation{"conv_1": {ID: "conv_1"}},
	}
	handler := NewConversationsHandler(&repository.Repositories{ConversationRepository: convRepo})

	r := gin.New()
	r.PATCH("/v1/conversations/:id", handler.Update())

	w := performRequest(r, http.MethodPatch, "/v1/conversations/conv_1", gin.H{"status": "banana"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, convRepo.updates)
}

func TestConversationsHandler_UpdateAppliesStatusAndPriority(t *testing.T) {
	convRepo := &fakeConversationRepository{
		conversations: map[string]*models.Conversation{"conv_1": {ID: "conv_1"}},
	}
	handler := NewConversationsHandler(&repository.Repositories{ConversationRepository: convRepo})

	r := gin.New()
	r.PATCH("/v1/conversations/:id", handler.Update())

	w := performRequest(r, http.MethodPatch, "/v1/conversations/conv_1", gin.H{
		"status":   "resolved",
		"priority": "urgent",
	})
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, convRepo.updates, 1)
	require.NotNil(t, convRepo.updates[0].Status)
	assert.Equal(t, enum.ConversationResolved, *convRepo.updates[0].Status)
	require.NotNil(t, convRepo.updates[0].Priority)
	assert.Equal(t, enum.PriorityUrgent, *convRepo.updates[0].Priority)
}

func TestConversationsHandler_UpdateUnknownConversation(t *testing.T) {
	convRepo := &fakeConversationRepository{conversations: map[string]*models.Conversation{}}
	handler := NewConversationsHandler(&repository.Repositories{ConversationRepository: convRepo})

	r := gin.New()
	r.PATCH("/v1/conversations/:id", handler.Update())

	w := performRequest(r, http.MethodPatch, "/v1/conversations/missing", gin.H{"status": "open"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
