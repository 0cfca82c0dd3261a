package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mknmagx/crmstack/dto"
	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/tracing"
	"github.com/mknmagx/crmstack/services/mailer"
)

type EmailsHandler struct {
	emailService interfaces.EmailService
}

func NewEmailsHandler(emailService interfaces.EmailService) *EmailsHandler {
	return &EmailsHandler{emailService: emailService}
}

// Send handles the HTTP request to send a new email. The sent message is
// registered as a tracked thread so replies get picked up by polling.
func (h *EmailsHandler) Send() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := opentracing.StartSpanFromContext(ctx, "EmailsHandler.Send")
		defer span.Finish()
		tracing.TagComponentRest(span)

		var request dto.SendEmailRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format", "details": err.Error()})
			return
		}

		response, err := h.emailService.SendEmail(ctx, request)
		if err != nil {
			tracing.TraceErr(span, err)
			if errors.Is(err, mailer.ErrNoRecipients) || errors.Is(err, mailer.ErrInvalidEmail) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send email"})
			return
		}

		c.JSON(http.StatusOK, response)
	}
}

type replyRequest struct {
	Comment string `json:"comment" binding:"required"`
}

// Reply sends a provider-side reply on an existing tracked thread.
func (h *EmailsHandler) Reply() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := opentracing.StartSpanFromContext(ctx, "EmailsHandler.Reply")
		defer span.Finish()
		tracing.TagComponentRest(span)

		var request replyRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "comment is required"})
			return
		}

		err := h.emailService.ReplyToThread(ctx, c.Param("id"), request.Comment)
		if err != nil {
			tracing.TraceErr(span, err)
			switch {
			case errors.Is(err, mailer.ErrThreadNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			case errors.Is(err, mailer.ErrThreadNotActive):
				c.JSON(http.StatusConflict, gin.H{"error": "thread is no longer active"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send reply"})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "sent"})
	}
}
