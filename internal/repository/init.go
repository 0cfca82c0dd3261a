package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/mknmagx/crmstack/interfaces"
	"github.com/mknmagx/crmstack/internal/models"
)

type Repositories struct {
	ConversationRepository    interfaces.ConversationRepository
	EmailThreadRepository     interfaces.EmailThreadRepository
	SyncStateRepository       interfaces.SyncStateRepository
	LegacyContactRepository   interfaces.LegacyContactRepository
	LegacyQuoteRepository     interfaces.LegacyQuoteRepository
	LegacyEmailRepository     interfaces.LegacyEmailRepository
	WhatsappMessageRepository interfaces.WhatsappMessageRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		ConversationRepository:    NewConversationRepository(db),
		EmailThreadRepository:     NewEmailThreadRepository(db),
		SyncStateRepository:       NewSyncStateRepository(db),
		LegacyContactRepository:   NewLegacyContactRepository(db),
		LegacyQuoteRepository:     NewLegacyQuoteRepository(db),
		LegacyEmailRepository:     NewLegacyEmailRepository(db),
		WhatsappMessageRepository: NewWhatsappMessageRepository(db),
	}
}

type MigrationConfig struct {
	MaxConn         int
	MaxIdleConn     int
	ConnMaxLifetime int
}

func MigrateDB(cfg *MigrationConfig, gormDB *gorm.DB) error {
	db, err := gormDB.DB()
	if err != nil {
		return err
	}

	db.SetMaxOpenConns(5)

	err = gormDB.AutoMigrate(
		&models.Conversation{},
		&models.ConversationMessage{},
		&models.EmailThread{},
		&models.SyncStatus{},
		&models.SyncLock{},
		&models.LegacyContactRequest{},
		&models.LegacyQuoteRequest{},
		&models.LegacyEmailRecord{},
		&models.WhatsappMessage{},
	)

	db.SetMaxIdleConns(cfg.MaxIdleConn)
	db.SetMaxOpenConns(cfg.MaxConn)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)

	return err
}
