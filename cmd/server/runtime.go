package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aggiex/accelerator/internal/httpapi"
	"github.com/aggiex/accelerator/internal/metrics"
	"github.com/aggiex/accelerator/internal/notifications"
	"github.com/aggiex/accelerator/internal/session"
	"github.com/aggiex/accelerator/internal/storage"
	"github.com/aggiex/accelerator/internal/task"
	"github.com/aggiex/accelerator/internal/verification"
)

const (
	rateLimitPruneInterval   = 5 * time.Minute
	rateLimitPruneSchedule   = "rate_limit_prune"
	loggerContextOpenDB      = "open_db"
	loggerContextAutoMigrate = "migrate"
)

// serverRuntime owns the router and the background workers that live as long as the process.
type serverRuntime struct {
	router     *gin.Engine
	dispatcher *task.Dispatcher
	schedulers []*task.Scheduler
	closers    []func() error
	logger     *zap.Logger
}

func (runtime *serverRuntime) start(ctx context.Context) {
	if runtime.dispatcher != nil {
		runtime.dispatcher.Start(ctx)
	}
	for _, scheduler := range runtime.schedulers {
		scheduler.Start(ctx)
	}
}

func (runtime *serverRuntime) stop() {
	for _, scheduler := range runtime.schedulers {
		scheduler.Stop()
	}
	if runtime.dispatcher != nil {
		runtime.dispatcher.Stop()
	}
	for _, closeResource := range runtime.closers {
		if closeErr := closeResource(); closeErr != nil {
			runtime.logger.Warn("close_resource_failed", zap.Error(closeErr))
		}
	}
}

func (application *ServerApplication) buildRuntime(ctx context.Context, config ServerConfig, logger *zap.Logger) (*serverRuntime, error) {
	if config.production() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpapi.RequestLogger(logger))

	runtime := &serverRuntime{router: router, logger: logger}

	if config.ServeMode.servesAPI() {
		if apiErr := application.attachAPI(ctx, runtime, config, logger); apiErr != nil {
			runtime.stop()
			return nil, apiErr
		}
	}

	if config.ServeMode.servesFrontend() && config.StaticDirectory != "" {
		registerFrontendRoutes(router, httpapi.NewStaticSiteHandler(config.StaticDirectory))
	}

	return runtime, nil
}

func (application *ServerApplication) attachAPI(ctx context.Context, runtime *serverRuntime, config ServerConfig, logger *zap.Logger) error {
	database, databaseErr := application.databaseOpener(storage.Config{
		DriverName:     config.DatabaseDriver,
		DataSourceName: config.DatabaseDataSourceName,
	})
	if databaseErr != nil {
		return fmt.Errorf("%s: %w", loggerContextOpenDB, databaseErr)
	}
	if sqlDatabase, sqlErr := database.DB(); sqlErr == nil {
		runtime.closers = append(runtime.closers, sqlDatabase.Close)
	}
	if migrateErr := storage.AutoMigrate(database); migrateErr != nil {
		return fmt.Errorf("%s: %w", loggerContextAutoMigrate, migrateErr)
	}

	contacts := storage.NewContactStore(database)
	applications := storage.NewApplicationStore(database)
	metricsRegistry := metrics.New()

	dispatcher := task.NewDispatcher(task.DispatcherConfig{}, logger, metricsRegistry.RecordJob)
	runtime.dispatcher = dispatcher

	emailSender, emailErr := newEmailSender(config, logger)
	if emailErr != nil {
		return emailErr
	}
	pushNotifier, pushErr := newPushNotifier(config, logger)
	if pushErr != nil {
		return pushErr
	}

	workflow := verification.NewWorkflow(verification.Config{FrontendURL: config.FrontendURL}, contacts, emailSender, dispatcher, logger).
		WithEmailRecorder(metricsRegistry.RecordEmail)

	sessionStore, sessionErr := newSessionStore(ctx, runtime, config, logger)
	if sessionErr != nil {
		return sessionErr
	}

	adminConfig := httpapi.AdminConfig{
		Username:     config.AdminUsername,
		CookieSecret: config.CookieSecret,
		SecureCookie: config.production(),
	}
	if config.AdminUsername != "" && config.AdminPassword != "" {
		passwordHash, hashErr := httpapi.HashAdminPassword(config.AdminPassword)
		if hashErr != nil {
			return fmt.Errorf("hash admin password: %w", hashErr)
		}
		adminConfig.PasswordHash = passwordHash
	} else {
		logger.Warn("admin_credentials_missing")
	}

	rateLimiter := httpapi.NewRateLimiter(0, 0)
	runtime.schedulers = append(runtime.schedulers, task.NewScheduler(rateLimitPruneSchedule, rateLimitPruneInterval, func(context.Context) error {
		if removed := rateLimiter.Prune(); removed > 0 {
			logger.Debug("rate_limit_pruned", zap.Int("removed", removed))
		}
		return nil
	}, logger))

	errorResponder := httpapi.NewErrorResponder(logger, config.Environment == environmentDevelopment)

	routes := apiRoutes{
		intake: httpapi.NewIntakeHandlers(httpapi.IntakeHandlersConfig{
			Contacts:     contacts,
			Applications: applications,
			Workflow:     workflow,
			Jobs:         dispatcher,
			Notifier:     pushNotifier,
			Metrics:      metricsRegistry,
			Errors:       errorResponder,
			FrontendURL:  config.FrontendURL,
			Logger:       logger,
		}),
		admin: httpapi.NewAdminHandlers(adminConfig, sessionStore, dispatcher, pushNotifier, metricsRegistry, logger),
		system: httpapi.NewSystemHandlers(httpapi.SystemHandlersConfig{
			Database:     database,
			Applications: applications,
			Environment:  config.Environment,
			Addr:         config.ApplicationAddress,
			CORSOrigin:   config.FrontendURL,
			Services: httpapi.ServiceStatus{
				SendGrid:      config.SendGridAPIKey != "",
				Pushover:      config.PushoverAppToken != "" && config.PushoverUserKey != "",
				RedisSessions: config.SessionRedisURL != "",
			},
			StartedAt: time.Now(),
			Logger:    logger,
		}),
		rateLimiter: rateLimiter,
		metrics:     metricsRegistry,
		frontendURL: config.FrontendURL,
		exposeDebug: !config.production(),
	}
	registerAPIRoutes(runtime.router, routes)

	return nil
}

func newEmailSender(config ServerConfig, logger *zap.Logger) (notifications.EmailSender, error) {
	if config.SendGridAPIKey == "" {
		logger.Warn("sendgrid_not_configured")
		return notifications.NewLoggingEmailSender(logger), nil
	}
	sender, senderErr := notifications.NewSendGridSender(notifications.SendGridConfig{
		APIKey:      config.SendGridAPIKey,
		FromAddress: config.EmailFromAddress,
		FromName:    config.EmailFromName,
	})
	if senderErr != nil {
		return nil, fmt.Errorf("sendgrid: %w", senderErr)
	}
	return sender, nil
}

func newPushNotifier(config ServerConfig, logger *zap.Logger) (notifications.PushNotifier, error) {
	if config.PushoverAppToken == "" || config.PushoverUserKey == "" {
		logger.Warn("pushover_not_configured")
		return notifications.NewLoggingPushNotifier(logger), nil
	}
	notifier, notifierErr := notifications.NewPushoverNotifier(notifications.PushoverConfig{
		AppToken: config.PushoverAppToken,
		UserKey:  config.PushoverUserKey,
	})
	if notifierErr != nil {
		return nil, fmt.Errorf("pushover: %w", notifierErr)
	}
	return notifier, nil
}

func newSessionStore(ctx context.Context, runtime *serverRuntime, config ServerConfig, logger *zap.Logger) (session.Store, error) {
	if config.SessionRedisURL == "" {
		logger.Info("admin_sessions_in_memory")
		return session.NewMemoryStore(), nil
	}
	redisStore, redisErr := session.NewRedisStore(ctx, config.SessionRedisURL)
	if redisErr != nil {
		return nil, fmt.Errorf("session store: %w", redisErr)
	}
	runtime.closers = append(runtime.closers, redisStore.Close)
	return redisStore, nil
}
