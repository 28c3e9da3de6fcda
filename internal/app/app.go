// Package app wires configuration into the services shared by the HTTP
// server and the operator CLI.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"triage-assistant/internal/agent"
	"triage-assistant/internal/chat"
	"triage-assistant/internal/config"
	"triage-assistant/internal/observability"
	"triage-assistant/internal/platform/database"
	"triage-assistant/internal/platform/telegram"
	"triage-assistant/internal/report"
	"triage-assistant/internal/triage"
	"triage-assistant/internal/vitals"
)

type App struct {
	Config *config.Config

	AI      agent.Client
	STT     *agent.WhisperClient
	Report  *report.Service
	Triage  *triage.Service
	Chat    *chat.Service
	Monitor *vitals.Monitor // doctor dashboard
	Home    *vitals.Monitor // patient view

	db *sql.DB
}

func newClient(ctx context.Context, cfg *config.Config) (agent.Client, error) {
	log := observability.Logger()
	if cfg.UseMockModel {
		log.Info("using mock model client")
		return agent.NewMockClient(), nil
	}
	log.Info("using Gemini model client", "model", cfg.ModelName)
	c, err := agent.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.ModelName)
	if err != nil {
		return nil, fmt.Errorf("initializing Gemini client: %w", err)
	}
	return c, nil
}

func openStore(cfg *config.Config) (*sql.DB, triage.Repository, chat.Repository, error) {
	switch cfg.StorageBackend {
	case "postgres":
		db, err := database.OpenPostgres(cfg.DatabaseURL, 10)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.Migrate(cfg.MigrationsPath, cfg.DatabaseURL); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return db, triage.NewSQLRepository(db), chat.NewSQLRepository(db), nil
	case "sqlite":
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return db, triage.NewSQLRepository(db), chat.NewSQLRepository(db), nil
	default:
		return nil, triage.NewMemoryRepository(), chat.NewMemoryRepository(), nil
	}
}

func newSinks(cfg *config.Config) ([]vitals.Sink, error) {
	switch cfg.VitalsSink {
	case "mqtt":
		s, err := vitals.NewMQTTSink(vitals.MQTTOptions{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Topic:    cfg.MQTTTopic,
		})
		if err != nil {
			return nil, err
		}
		return []vitals.Sink{s}, nil
	case "kafka":
		s, err := vitals.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		return []vitals.Sink{s}, nil
	}
	return nil, nil
}

// New builds every service. Monitors are created but not started.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	ai, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	db, triageRepo, chatRepo, err := openStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.StorageBackend, err)
	}

	sinks, err := newSinks(cfg)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("connecting vitals sink: %w", err)
	}

	seed := time.Now().UnixNano()
	monitor := vitals.NewMonitor(vitals.NewGenerator(vitals.MonitorProfile, seed), cfg.VitalsInterval, sinks...)
	home := vitals.NewMonitor(vitals.NewGenerator(vitals.HomeProfile, seed+1), cfg.VitalsInterval)

	var reportSvc *report.Service
	if cfg.TelegramToken != "" && cfg.DoctorChatID != 0 {
		reportSvc = report.NewService(telegram.NewClient(cfg.TelegramToken), cfg.DoctorChatID, cfg.ReportFontPath)
	} else {
		observability.Logger().Warn("TELEGRAM_BOT_TOKEN or DOCTOR_CHAT_ID not set, reports will not be sent")
		reportSvc = report.NewService(nil, 0, cfg.ReportFontPath)
	}

	var stt *agent.WhisperClient
	if cfg.STTURL != "" {
		stt = agent.NewWhisperClient(cfg.STTURL)
	}

	return &App{
		Config:  cfg,
		AI:      ai,
		STT:     stt,
		Report:  reportSvc,
		Triage:  triage.NewService(triageRepo, ai, monitor, reportSvc),
		Chat:    chat.NewService(chatRepo, ai, home),
		Monitor: monitor,
		Home:    home,
		db:      db,
	}, nil
}

// Run ticks both monitors until ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	go a.Monitor.Run(ctx)
	go a.Home.Run(ctx)
}

// Close waits for background triage runs and releases every connection.
func (a *App) Close() error {
	a.Triage.Wait()

	var result *multierror.Error
	if err := a.Monitor.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := a.Home.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
