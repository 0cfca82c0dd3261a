package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/mknmagx/crmstack/dto"
	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/tracing"
)

type LegacyHandler struct {
	merger interfaces.LegacyMergerService
}

func NewLegacyHandler(merger interfaces.LegacyMergerService) *LegacyHandler {
	return &LegacyHandler{merger: merger}
}

// Import runs a legacy import outside the regular sync pass, with per-source
// toggles. An empty body imports everything and skips already-migrated rows.
func (h *LegacyHandler) Import() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := opentracing.StartSpanFromContext(ctx, "LegacyHandler.Import")
		defer span.Finish()
		tracing.TagComponentRest(span)

		options := dto.DefaultImportOptions()
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&options); err != nil {
				tracing.TraceErr(span, err)
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
				return
			}
		}

		result, err := h.merger.ImportFromLegacySystems(ctx, options)
		if err != nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "import failed", "details": err.Error()})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}
