package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/mknmagx/crmstack/dto"
	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/repository"
	"github.com/mknmagx/crmstack/internal/tracing"
	"github.com/mknmagx/crmstack/internal/utils"
)

type SyncHandler struct {
	orchestrator interfaces.SyncOrchestratorService
	repositories *repository.Repositories
}

func NewSyncHandler(orchestrator interfaces.SyncOrchestratorService, repositories *repository.Repositories) *SyncHandler {
	return &SyncHandler{
		orchestrator: orchestrator,
		repositories: repositories,
	}
}

type triggerSyncRequest struct {
	OperatorID string `json:"operatorId"`
}

// Trigger runs a manual sync pass on behalf of a console operator. The
// operator identity comes from the request body or, failing that, the
// identity headers.
func (h *SyncHandler) Trigger() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := opentracing.StartSpanFromContext(ctx, "SyncHandler.Trigger")
		defer span.Finish()
		tracing.TagComponentRest(span)

		var request triggerSyncRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&request); err != nil {
				tracing.TraceErr(span, err)
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
				return
			}
		}

		operatorID := request.OperatorID
		if operatorID == "" {
			operatorID = utils.GetUserIDFromContext(ctx)
		}
		if operatorID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "operatorId is required"})
			return
		}

		result, err := h.orchestrator.ManualSync(ctx, operatorID)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "sync failed", "details": err.Error()})
			return
		}

		if result.Skipped && result.SkipReason == dto.SkipReasonSyncLocked {
			c.JSON(http.StatusConflict, result)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// Status returns the last completed sync pass.
func (h *SyncHandler) Status() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := opentracing.StartSpanFromContext(ctx, "SyncHandler.Status")
		defer span.Finish()
		tracing.TagComponentRest(span)

		status, err := h.repositories.SyncStateRepository.GetStatus(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read sync status"})
			return
		}

		c.JSON(http.StatusOK, dto.SyncStatusResponse{
			LastSyncAt: status.LastSyncAt,
			LastSyncBy: status.LastSyncBy,
			SyncCount:  status.SyncCount,
		})
	}
}

// Lock reports whether a sync pass currently holds the persisted lock.
func (h *SyncHandler) Lock() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := opentracing.StartSpanFromContext(ctx, "SyncHandler.Lock")
		defer span.Finish()
		tracing.TagComponentRest(span)

		lock, err := h.repositories.SyncStateRepository.GetLock(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read sync lock"})
			return
		}

		response := dto.SyncLockResponse{}
		if lock != nil && lock.IsLocked {
			response.IsLocked = true
			response.LockedBy = lock.LockedBy
		}

		c.JSON(http.StatusOK, response)
	}
}
