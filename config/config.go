package config

import (
	"github.com/mknmagx/crmstack/internal/logger"
	"github.com/mknmagx/crmstack/internal/tracing"
)

type AppConfig struct {
	APIPort     string `env:"PORT" envDefault:"12300"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	Logger      *logger.Config
	Tracing     *tracing.JaegerConfig
}

type DatabaseConfig struct {
	Host            string `env:"CRMSTACK_POSTGRES_HOST,required"`
	Port            string `env:"CRMSTACK_POSTGRES_PORT,required"`
	User            string `env:"CRMSTACK_POSTGRES_USER,required"`
	DBName          string `env:"CRMSTACK_POSTGRES_DB_NAME,required"`
	Password        string `env:"CRMSTACK_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"CRMSTACK_POSTGRES_DB_MAX_CONN" envDefault:"20"`
	MaxIdleConn     int    `env:"CRMSTACK_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"5"`
	ConnMaxLifetime int    `env:"CRMSTACK_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"CRMSTACK_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"CRMSTACK_POSTGRES_SSL_MODE" envDefault:"require"`
}

// MailProviderConfig carries the client-credentials identity used against the
// remote mail API plus the mailbox the console sends from.
type MailProviderConfig struct {
	TenantID      string `env:"MAIL_PROVIDER_TENANT_ID"`
	ClientID      string `env:"MAIL_PROVIDER_CLIENT_ID"`
	ClientSecret  string `env:"MAIL_PROVIDER_CLIENT_SECRET"`
	SenderAddress string `env:"MAIL_PROVIDER_SENDER_ADDRESS"`
	APIBaseURL    string `env:"MAIL_PROVIDER_API_BASE_URL" envDefault:"https://graph.microsoft.com/v1.0"`
	LoginBaseURL  string `env:"MAIL_PROVIDER_LOGIN_BASE_URL" envDefault:"https://login.microsoftonline.com"`
	TokenScope    string `env:"MAIL_PROVIDER_TOKEN_SCOPE" envDefault:"https://graph.microsoft.com/.default"`
}

// SyncConfig controls the orchestrator's channel passes.
type SyncConfig struct {
	IntervalMinutes int  `env:"SYNC_INTERVAL_MINUTES" envDefault:"15"`
	FormsEnabled    bool `env:"SYNC_FORMS_ENABLED" envDefault:"true"`
	MailEnabled     bool `env:"SYNC_MAIL_ENABLED" envDefault:"true"`
	WhatsappEnabled bool `env:"SYNC_WHATSAPP_ENABLED" envDefault:"true"`
}

type StorageConfig struct {
	AccountID        string `env:"R2_ACCOUNT_ID"`
	AccessKeyID      string `env:"R2_ACCESS_KEY_ID"`
	AccessKeySecret  string `env:"R2_ACCESS_KEY_SECRET"`
	AttachmentBucket string `env:"BUCKET_NAME_ATTACHMENTS" envDefault:"crm-attachments"`
}
