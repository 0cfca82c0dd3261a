package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	custom_err "github.com/mknmagx/crmstack/api/errors"
	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/enum"
	"github.com/mknmagx/crmstack/internal/repository"
	"github.com/mknmagx/crmstack/internal/tracing"
)

type ConversationsHandler struct {
	repositories *repository.Repositories
}

func NewConversationsHandler(repositories *repository.Repositories) *ConversationsHandler {
	return &ConversationsHandler{repositories: repositories}
}

// Get returns a single conversation by ID.
func (h *ConversationsHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := opentracing.StartSpanFromContext(ctx, "ConversationsHandler.Get")
		defer span.Finish()
		tracing.TagComponentRest(span)

		conversation, err := h.repositories.ConversationRepository.GetByID(ctx, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
			return
		}
		if conversation == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}

		c.JSON(http.StatusOK, conversation)
	}
}

// Messages returns the full timeline of a conversation.
func (h *ConversationsHandler) Messages() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := opentracing.StartSpanFromContext(ctx, "ConversationsHandler.Messages")
		defer span.Finish()
		tracing.TagComponentRest(span)

		conversation, err := h.repositories.ConversationRepository.GetByID(ctx, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
			return
		}
		if conversation == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}

		messages, err := h.repositories.ConversationRepository.ListMessages(ctx, conversation.ID)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"messages": messages,
			"total":    len(messages),
		})
	}
}

type updateConversationRequest struct {
	Status     *string `json:"status"`
	Priority   *string `json:"priority"`
	AssignedTo *string `json:"assignedTo"`
}

var validStatuses = map[enum.ConversationStatus]struct{}{
	enum.ConversationOpen:     {},
	enum.ConversationPending:  {},
	enum.ConversationResolved: {},
	enum.ConversationClosed:   {},
}

var validPriorities = map[enum.ConversationPriority]struct{}{
	enum.PriorityLow:    {},
	enum.PriorityNormal: {},
	enum.PriorityHigh:   {},
	enum.PriorityUrgent: {},
}

// Update applies status, priority and assignee changes to a conversation.
func (h *ConversationsHandler) Update() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := opentracing.StartSpanFromContext(ctx, "ConversationsHandler.Update")
		defer span.Finish()
		tracing.TagComponentRest(span)

		var request updateConversationRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
			return
		}

		update, errs := h.buildUpdate(&request)
		if errs.HasErrors() {
			tracing.TraceErr(span, errs)
			c.JSON(http.StatusBadRequest, errs)
			return
		}

		conversation, err := h.repositories.ConversationRepository.GetByID(ctx, c.Param("id"))
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
			return
		}
		if conversation == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}

		if err := h.repositories.ConversationRepository.Update(ctx, conversation.ID, update); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update conversation"})
			return
		}

		updated, err := h.repositories.ConversationRepository.GetByID(ctx, conversation.ID)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
			return
		}

		c.JSON(http.StatusOK, updated)
	}
}

func (h *ConversationsHandler) buildUpdate(request *updateConversationRequest) (interfaces.ConversationUpdate, *custom_err.MultiErrors) {
	errs := custom_err.NewMultiErrors()
	update := interfaces.ConversationUpdate{}

	if request.Status != nil {
		status := enum.ConversationStatus(*request.Status)
		if _, ok := validStatuses[status]; !ok {
			errs.Add("status", "unknown status value", errors.New("invalid status"))
		} else {
			update.Status = &status
		}
	}

	if request.Priority != nil {
		priority := enum.ConversationPriority(*request.Priority)
		if _, ok := validPriorities[priority]; !ok {
			errs.Add("priority", "unknown priority value", errors.New("invalid priority"))
		} else {
			update.Priority = &priority
		}
	}

	if request.AssignedTo != nil {
		update.AssignedTo = request.AssignedTo
	}

	if update.Status == nil && update.Priority == nil && update.AssignedTo == nil && !errs.HasErrors() {
		errs.Add("body", "provide at least one of status, priority or assignedTo", errors.New("empty update"))
	}

	return update, errs
}
