package dto

import (
	"time"

	"github.com/mknmagx/crmstack/internal/models"
)

type InboxOptions struct {
	IncludeLegacy bool   `form:"includeLegacy"`
	Channel       string `form:"channel"`
	Limit         int    `form:"limit"`
}

// InboxEntry is one row of the unified inbox. Legacy overlay entries are
// mapped in memory from not-yet-migrated records and carry IsLegacy=true.
type InboxEntry struct {
	Conversation *models.Conversation `json:"conversation"`
	IsLegacy     bool                 `json:"isLegacy"`
	DisplayAt    time.Time            `json:"displayAt"`
}
