package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/mknmagx/crmstack/internal/models"
	"github.com/mknmagx/crmstack/internal/repository"
	"github.com/mknmagx/crmstack/internal/tracing"
	"github.com/mknmagx/crmstack/internal/utils"
)

type WebhooksHandler struct {
	repositories *repository.Repositories
}

func NewWebhooksHandler(repositories *repository.Repositories) *WebhooksHandler {
	return &WebhooksHandler{repositories: repositories}
}

type whatsappWebhookRequest struct {
	WaContactID string     `json:"waContactId" binding:"required"`
	ContactName string     `json:"contactName"`
	Phone       string     `json:"phone"`
	Body        string     `json:"body" binding:"required"`
	SentAt      *time.Time `json:"sentAt"`
}

// Whatsapp accepts an inbound chat message into the staging table. The sync
// pass drains staged rows into canonical conversations later.
func (h *WebhooksHandler) Whatsapp() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := opentracing.StartSpanFromContext(ctx, "WebhooksHandler.Whatsapp")
		defer span.Finish()
		tracing.TagComponentRest(span)

		var request whatsappWebhookRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format", "details": err.Error()})
			return
		}

		sentAt := utils.Now()
		if request.SentAt != nil {
			sentAt = *request.SentAt
		}

		message := &models.WhatsappMessage{
			WaContactID: request.WaContactID,
			ContactName: request.ContactName,
			Phone:       request.Phone,
			Body:        request.Body,
			SentAt:      sentAt,
		}

		if err := h.repositories.WhatsappMessageRepository.Create(ctx, message); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
			return
		}

		span.LogKV("messageId", message.ID)

		c.JSON(http.StatusAccepted, gin.H{"id": message.ID})
	}
}
