package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"maintenance_scheduler/internal/app"
	domainCalendar "maintenance_scheduler/internal/domain/calendar"
	"maintenance_scheduler/internal/domain/client"
	"maintenance_scheduler/internal/domain/ledger"
	"maintenance_scheduler/internal/infra/calendar"
	"maintenance_scheduler/internal/infra/config"
	idb "maintenance_scheduler/internal/infra/database"
	"maintenance_scheduler/internal/infra/email"
	"maintenance_scheduler/internal/infra/filestore"
	"maintenance_scheduler/internal/infra/lock"
	"maintenance_scheduler/internal/infra/logger"
	"maintenance_scheduler/internal/infra/retention"
	"maintenance_scheduler/internal/infra/scheduler"
	"maintenance_scheduler/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	runLockTTL = 30 * time.Minute
	runTimeout = 30 * time.Minute
)

type cliFlags struct {
	preview     bool
	clientIndex int
	forceDate   string
	configPath  string
	clientsPath string
	daemon      bool
	authorize   bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.BoolVar(&f.preview, "preview", false, "Generate email previews without booking, sending or recording")
	flag.IntVar(&f.clientIndex, "client", -1, "Process only the active client at this index")
	flag.StringVar(&f.forceDate, "force-date", "", `Force a maintenance date (e.g. "Monday, March 3rd, 2025")`)
	flag.StringVar(&f.configPath, "config", "config/config.json", "Path to settings file")
	flag.StringVar(&f.clientsPath, "clients", "config/clients.json", "Path to clients file")
	flag.BoolVar(&f.daemon, "daemon", false, "Stay running and schedule passes with CRON_SPEC")
	flag.BoolVar(&f.authorize, "authorize", false, "Authorize Google Calendar access and store the token")
	flag.Parse()
	return f
}

func main() {
	os.Exit(run(parseFlags()))
}

func run(f cliFlags) int {
	cfg, err := config.Load(f.configPath, f.clientsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not load application configuration: %v\n", err)
		return 1
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not create data directory %s: %v\n", cfg.DataDir, err)
		return 1
	}
	fw, err := logger.Init(cfg, cfg.LogFilePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not open log file: %v\n", err)
		return 1
	}
	defer fw.Close()

	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"data_dir":    cfg.DataDir,
	}).Info("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if f.authorize {
		conf := calendar.OAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret)
		if err := calendar.Authorize(ctx, conf, cfg.GoogleTokenPath, os.Stdin, os.Stdout); err != nil {
			mainLogger.WithError(err).Error("Calendar authorization failed")
			return 1
		}
		mainLogger.Infof("Calendar token saved to %s", cfg.GoogleTokenPath)
		return 0
	}

	settings, err := config.LoadSettings(cfg.ConfigPath)
	if err != nil {
		mainLogger.WithError(err).Error("Could not load settings")
		return 1
	}
	settings.ApplyEnv(cfg)
	loc := settings.Location()

	clients, err := filestore.LoadClients(cfg.ClientsPath)
	if err != nil {
		mainLogger.WithError(err).Error("Could not load clients")
		return 1
	}

	ledgerRepo, closeLedger, err := newLedger(ctx, cfg, mainLogger)
	if err != nil {
		mainLogger.WithError(err).Error("Could not initialize notification ledger")
		return 1
	}
	defer closeLedger()

	gateway, err := newCalendarGateway(ctx, cfg, settings)
	if err != nil {
		mainLogger.WithError(err).Error("Could not initialize calendar")
		return 1
	}

	renderer, err := email.NewRenderer(email.Sender{
		CompanyName: settings.Company.Name,
		SenderName:  settings.Company.SenderName,
		SenderEmail: settings.Company.SenderEmail,
	}, settings.Email.SubjectTemplate, settings.Email.TemplateText, settings.Email.TemplateHTML)
	if err != nil {
		mainLogger.WithError(err).Error("Could not load email templates")
		return 1
	}

	mailer, err := email.NewMailer(ctx, cfg, settings, logger.Component("mailer"))
	if err != nil {
		mainLogger.WithError(err).Error("Could not initialize email transport")
		return 1
	}

	cleaner := retention.NewCleaner(retention.Policy{
		OutputDir:           cfg.OutputDir(),
		OutputRetentionDays: settings.LogsCleanup.OutputFilesDays(),
		LogFiles: []retention.LogFile{
			{Path: cfg.LogFilePath(), RetentionDays: settings.LogsCleanup.MaintenanceLogDays()},
			{Path: cfg.CronLogFilePath(), RetentionDays: settings.LogsCleanup.CronLogDays()},
		},
	}, time.Local, logger.Component("retention"))
	cleaner.OnRotated = func(path string) {
		if err := fw.Reopen(path); err != nil {
			mainLogger.WithError(err).Error("Failed to reopen log file after cleanup")
		}
	}

	policy := app.SchedulingPolicy{
		Location:                    loc,
		MinimumNoticeDays:           settings.Scheduling.MinNoticeDays(),
		AdvanceNoticeDays:           settings.Scheduling.AdvanceNoticeDays,
		AllowMultipleBookingsPerDay: settings.Scheduling.AllowMultipleBookingsPerDay,
		WeekdayFallback:             settings.Scheduling.WeekdayFallback,
	}
	deps := app.MaintenanceServiceDeps{
		Clients:         clients,
		Ledger:          ledgerRepo,
		Calendar:        gateway,
		Renderer:        renderer,
		Mailer:          mailer,
		Archive:         email.NewArchive(cfg.OutputDir(), cfg.PreviewDir()),
		Resolver:        app.NewWindowResolver(policy, logger.Component("resolver")),
		Guard:           app.CollisionGuard{AllowMultipleBookingsPerDay: policy.AllowMultipleBookingsPerDay},
		Cleaner:         cleaner,
		Policy:          policy,
		ClientReminders: settings.Calendar.ClientReminders,
		Logger:          logger.Component("maintenance_service"),
	}

	if cfg.RedisURL != "" {
		rdb, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			mainLogger.WithError(err).Error("Could not connect to Redis")
			return 1
		}
		defer rdb.Close()
		deps.Locker = lock.NewRedisLocker(rdb, lock.DefaultKey, runLockTTL)
		mainLogger.Info("Redis run lock enabled.")
	}

	var bot *telebot.Bot
	if cfg.TelegramEnabled() {
		bot, err = newBot(cfg, logger.Component("telebot"))
		if err != nil {
			mainLogger.WithError(err).Error("Could not create Telegram bot")
			return 1
		}
		deps.Reporter = app.NewTelegramRunReporter(telegram.NewTelebotAdapter(bot), cfg.AdminTelegramID, logger.Component("run_reporter"))
		mainLogger.Info("Telegram run reports enabled.")
	}

	service := app.NewMaintenanceService(deps)

	if f.daemon {
		return runDaemon(ctx, cfg, loc, service, clients, ledgerRepo, bot, mainLogger)
	}

	opts := app.RunOptions{Preview: f.preview}
	if f.clientIndex >= 0 {
		idx := f.clientIndex
		opts.ClientIndex = &idx
	}
	forceDate := f.forceDate
	if forceDate == "" {
		forceDate = os.Getenv("FORCE_MAINTENANCE_DATE")
	}
	if forceDate != "" {
		forced, err := parseForcedDate(forceDate, loc)
		if err != nil {
			mainLogger.WithError(err).Error("Invalid forced date")
			return 1
		}
		opts.ForcedDate = &forced
	}

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()
	report, err := service.Run(runCtx, opts)
	if err != nil {
		if errors.Is(err, app.ErrRunInProgress) {
			return 0
		}
		mainLogger.WithError(err).Error("Fatal error")
		return 1
	}
	mainLogger.Infof("Run %s finished: %d/%d clients OK.", report.RunID, report.Succeeded(), len(report.Results))
	return 0
}

func runDaemon(
	ctx context.Context,
	cfg *config.AppConfig,
	loc *time.Location,
	service *app.MaintenanceService,
	clients client.Repository,
	ledgerRepo ledger.Repository,
	bot *telebot.Bot,
	mainLogger *logrus.Entry,
) int {
	runScheduler := scheduler.NewRunScheduler(service, logger.Component("scheduler"), cfg.CronSpec, loc, runTimeout)
	if err := runScheduler.Start(); err != nil {
		mainLogger.WithError(err).Error("Could not start scheduler")
		return 1
	}

	if bot != nil {
		opsService := app.NewOpsService(clients, ledgerRepo, service, cfg.AdminTelegramID)
		telegram.RegisterOpsHandlers(ctx, bot, opsService, cfg.AdminTelegramID, logger.Component("telegram_handlers"))
		mainLogger.Info("Operator command handlers registered.")
		go bot.Start()
	}

	mainLogger.Info("Application setup complete. Scheduler is running.")
	<-ctx.Done()

	mainLogger.Info("Shutting down application...")
	if bot != nil {
		bot.Stop()
	}
	runScheduler.Stop()
	mainLogger.Info("Application shut down gracefully.")
	return 0
}

func newLedger(ctx context.Context, cfg *config.AppConfig, log *logrus.Entry) (ledger.Repository, func(), error) {
	if cfg.LedgerDatabaseURL == "" {
		log.Infof("Using JSON ledger at %s", cfg.LedgerPath())
		return filestore.NewJSONLedgerRepository(cfg.LedgerPath()), func() {}, nil
	}

	db, err := idb.NewPostgresConnection(ctx, cfg.LedgerDatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	repo := idb.NewPostgresLedgerRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info("Using PostgreSQL ledger.")
	return repo, func() { closeDB(db, log) }, nil
}

func closeDB(db *sql.DB, log *logrus.Entry) {
	if err := db.Close(); err != nil {
		log.WithError(err).Warn("Failed to close database")
	}
}

func newCalendarGateway(ctx context.Context, cfg *config.AppConfig, settings *config.Settings) (domainCalendar.Gateway, error) {
	if cfg.MockCalendar {
		logger.Component("main").Warn("Using in-memory calendar (MOCK_CALENDAR=true).")
		return calendar.NewMockGateway(logger.Component("calendar")), nil
	}

	conf := calendar.OAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret)
	svc, err := calendar.NewService(ctx, conf, cfg.GoogleTokenPath)
	if err != nil {
		return nil, err
	}
	return calendar.NewGoogleGateway(svc, calendar.GoogleGatewayConfig{
		CalendarID:        cfg.GoogleCalendarID,
		CheckAllCalendars: settings.Calendar.CheckAllCalendars,
		Timezone:          settings.Scheduling.Timezone,
		OrganizerEmail:    settings.Company.SenderEmail,
		CompanyReminders:  settings.Calendar.CompanyRemindersEnabled(),
		EmailReminderMins: settings.Calendar.Reminders.Email,
		PopupReminderMins: settings.Calendar.Reminders.Popup,
	}, logger.Component("calendar")), nil
}

func newBot(cfg *config.AppConfig, log *logrus.Entry) (*telebot.Bot, error) {
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := log.WithError(err)
			if c != nil && c.Sender() != nil && c.Chat() != nil {
				entry = entry.WithFields(logrus.Fields{"sender_id": c.Sender().ID, "chat_id": c.Chat().ID})
			}
			entry.Error("Telegram handler error")
		},
	}
	return telebot.NewBot(pref)
}
