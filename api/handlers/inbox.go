package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/mknmagx/crmstack/dto"
	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/tracing"
)

type InboxHandler struct {
	merger interfaces.LegacyMergerService
}

func NewInboxHandler(merger interfaces.LegacyMergerService) *InboxHandler {
	return &InboxHandler{merger: merger}
}

// List returns the unified inbox, optionally overlaying not-yet-migrated
// legacy records.
func (h *InboxHandler) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := opentracing.StartSpanFromContext(ctx, "InboxHandler.List")
		defer span.Finish()
		tracing.TagComponentRest(span)

		var options dto.InboxOptions
		if err := c.ShouldBindQuery(&options); err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters"})
			return
		}

		entries, err := h.merger.GetUnifiedInbox(ctx, options)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load inbox"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"entries": entries,
			"total":   len(entries),
		})
	}
}
