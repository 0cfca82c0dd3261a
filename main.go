package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/mknmagx/crmstack/config"
	"github.com/mknmagx/crmstack/internal/database"
	"github.com/mknmagx/crmstack/internal/repository"
	"github.com/mknmagx/crmstack/server"
)

func main() {
	app := &cli.App{
		Name:  "crmstack",
		Usage: "customer relations console sync core",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(c *cli.Context) error {
					cfg, db := mustInit()

					err := repository.MigrateDB(&repository.MigrationConfig{
						MaxConn:         cfg.DatabaseConfig.MaxConn,
						MaxIdleConn:     cfg.DatabaseConfig.MaxIdleConn,
						ConnMaxLifetime: cfg.DatabaseConfig.ConnMaxLifetime,
					}, db)
					if err != nil {
						log.Fatalf("Database migration failed: %v", err)
					}
					log.Println("Database migration completed successfully")
					return nil
				},
			},
			{
				Name:  "server",
				Usage: "Start the application server",
				Action: func(c *cli.Context) error {
					cfg, db := mustInit()

					log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
					log.Println("CRMStack starting up...")

					srv, err := server.NewServer(cfg, db)
					if err != nil {
						log.Fatalf("Server setup failed: %v", err)
					}

					if err := srv.Run(); err != nil {
						log.Fatalf("Server startup failed: %v", err)
					}

					log.Println("Shutdown complete")
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func mustInit() (*config.Config, *gorm.DB) {
	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("Config initialization failed: %v", err)
	}
	if cfg == nil {
		log.Fatalf("config is empty")
	}

	db, err := database.InitDatabase(&database.DatabaseConfig{
		DBName:          cfg.DatabaseConfig.DBName,
		Host:            cfg.DatabaseConfig.Host,
		Port:            cfg.DatabaseConfig.Port,
		User:            cfg.DatabaseConfig.User,
		Password:        cfg.DatabaseConfig.Password,
		MaxConn:         cfg.DatabaseConfig.MaxConn,
		MaxIdleConn:     cfg.DatabaseConfig.MaxIdleConn,
		ConnMaxLifetime: cfg.DatabaseConfig.ConnMaxLifetime,
		LogLevel:        cfg.DatabaseConfig.LogLevel,
		SSLMode:         cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}

	return cfg, db
}
