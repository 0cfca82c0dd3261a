package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/mknmagx/crmstack/internal/logger"
	"github.com/mknmagx/crmstack/internal/tracing"
)

type Config struct {
	AppConfig          *AppConfig
	Logger             *logger.Config
	Tracing            *tracing.JaegerConfig
	DatabaseConfig     *DatabaseConfig
	MailProviderConfig *MailProviderConfig
	SyncConfig         *SyncConfig
	StorageConfig      *StorageConfig
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:          &AppConfig{},
		Logger:             &logger.Config{},
		Tracing:            &tracing.JaegerConfig{},
		DatabaseConfig:     &DatabaseConfig{},
		MailProviderConfig: &MailProviderConfig{},
		SyncConfig:         &SyncConfig{},
		StorageConfig:      &StorageConfig{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading crmstack config: %v", err)
	}

	return config, nil
}
