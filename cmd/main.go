package main

import (
	"log"

	"github.com/sqlreports/internal/api"
	"github.com/sqlreports/internal/auth"
	"github.com/sqlreports/internal/config"
	"github.com/sqlreports/internal/database"
	"github.com/sqlreports/internal/notify"
	"github.com/sqlreports/internal/runner"
)

func main() {
	// Initialize configuration
	cfg := config.LoadConfig()

	// Initialize database
	if err := database.Initialize(cfg.Database.Path); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	db := database.GetDB()

	auth.SetSecret(cfg.Server.JWTSecret)

	mailer := notify.NewMailer(&notify.MailerConfig{
		SMTPHost: cfg.Email.SMTPHost,
		SMTPPort: cfg.Email.SMTPPort,
		From:     cfg.Email.From,
		Password: cfg.Email.Password,
		WWWRoot:  cfg.Site.WWWRoot,
	}, db)

	slackNotifier := notify.NewSlackNotifier(cfg.Slack.Token, cfg.Slack.Channel)

	// Start the report scheduler
	reportRunner := runner.New(cfg, db, mailer, slackNotifier)
	reportRunner.Start()
	defer reportRunner.Stop()

	// Initialize and start API server
	server := api.NewServer(cfg, reportRunner)
	if err := server.Start(cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
