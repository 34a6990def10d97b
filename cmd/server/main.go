package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aggiex/accelerator/internal/storage"
)

const (
	commandUseName                = "server"
	commandShortDescription       = "Run the AggieX intake server"
	commandLongDescription        = "Launch the AggieX accelerator intake API and, optionally, the built frontend"
	missingConfigurationMessage   = "missing required configuration"
	loggerCreationErrorMessage    = "logger"
	logEventListening             = "listening"
	logEventShuttingDown          = "shutting_down"
	logFieldAddress               = "addr"
	unexpectedArgumentsMessage    = "unexpected command arguments"
	commandInitializationFailure  = "failed to configure command"
	flagNotDefinedMessage         = "flag %s not defined"
	environmentConfigurationError = "failed to apply environment configuration"
	environmentFileError          = "failed to load environment file"
	defaultEnvironmentFile        = ".env"
	environmentProduction         = "production"
	environmentDevelopment        = "development"
	readHeaderTimeoutSeconds      = 5
	shutdownTimeout               = 10 * time.Second

	environmentKeyApplicationAddress = "APP_ADDR"
	environmentKeyEnvironment        = "APP_ENV"
	environmentKeyServeMode          = "SERVE_MODE"
	environmentKeyDatabaseDriver     = "DB_DRIVER"
	environmentKeyDatabaseDataSource = "DB_DSN"
	environmentKeyFrontendURL        = "FRONTEND_URL"
	environmentKeySendGridAPIKey     = "SENDGRID_API_KEY"
	environmentKeyEmailFromAddress   = "EMAIL_FROM_ADDRESS"
	environmentKeyEmailFromName      = "EMAIL_FROM_NAME"
	environmentKeyPushoverAppToken   = "PUSHOVER_APP_TOKEN"
	environmentKeyPushoverUserKey    = "PUSHOVER_USER_KEY"
	environmentKeyAdminUsername      = "ADMIN_USERNAME"
	environmentKeyAdminPassword      = "ADMIN_PASSWORD"
	environmentKeyCookieSecret       = "SESSION_COOKIE_SECRET"
	environmentKeySessionRedisURL    = "SESSION_REDIS_URL"
	environmentKeyStaticDirectory    = "STATIC_DIR"

	flagNameApplicationAddress = "app-addr"
	flagNameEnvironment        = "app-env"
	flagNameServeMode          = "serve-mode"
	flagNameDatabaseDriver     = "db-driver"
	flagNameDatabaseDataSource = "db-dsn"
	flagNameFrontendURL        = "frontend-url"
	flagNameSendGridAPIKey     = "sendgrid-api-key"
	flagNameEmailFromAddress   = "email-from-address"
	flagNameEmailFromName      = "email-from-name"
	flagNamePushoverAppToken   = "pushover-app-token"
	flagNamePushoverUserKey    = "pushover-user-key"
	flagNameAdminUsername      = "admin-username"
	flagNameAdminPassword      = "admin-password"
	flagNameCookieSecret       = "session-cookie-secret"
	flagNameSessionRedisURL    = "session-redis-url"
	flagNameStaticDirectory    = "static-dir"

	defaultApplicationAddress = ":3001"
	defaultFrontendURL        = "http://localhost:5175"
	defaultEmailFromAddress   = "team@aggiex.org"
	defaultEmailFromName      = "AggieX"
)

type configurationEntry struct {
	environmentKey string
	flagName       string
	defaultValue   string
	usage          string
}

var configurationEntries = []configurationEntry{
	{environmentKeyApplicationAddress, flagNameApplicationAddress, defaultApplicationAddress, "address for the HTTP server to listen on"},
	{environmentKeyEnvironment, flagNameEnvironment, environmentDevelopment, "runtime environment (development or production)"},
	{environmentKeyServeMode, flagNameServeMode, string(ServeModeMonolith), "what to serve: monolith, api or web"},
	{environmentKeyDatabaseDriver, flagNameDatabaseDriver, storage.DriverNamePostgres, "database driver (postgres, mysql or sqlite)"},
	{environmentKeyDatabaseDataSource, flagNameDatabaseDataSource, "", "database connection string"},
	{environmentKeyFrontendURL, flagNameFrontendURL, defaultFrontendURL, "public frontend origin used for verification links and CORS"},
	{environmentKeySendGridAPIKey, flagNameSendGridAPIKey, "", "SendGrid API key; emails are only logged when empty"},
	{environmentKeyEmailFromAddress, flagNameEmailFromAddress, defaultEmailFromAddress, "sender address for outgoing email"},
	{environmentKeyEmailFromName, flagNameEmailFromName, defaultEmailFromName, "sender name for outgoing email"},
	{environmentKeyPushoverAppToken, flagNamePushoverAppToken, "", "Pushover application token"},
	{environmentKeyPushoverUserKey, flagNamePushoverUserKey, "", "Pushover user key"},
	{environmentKeyAdminUsername, flagNameAdminUsername, "", "admin dashboard username"},
	{environmentKeyAdminPassword, flagNameAdminPassword, "", "admin dashboard password"},
	{environmentKeyCookieSecret, flagNameCookieSecret, "", "secret signing the admin session cookie"},
	{environmentKeySessionRedisURL, flagNameSessionRedisURL, "", "redis URL for admin sessions; sessions stay in memory when empty"},
	{environmentKeyStaticDirectory, flagNameStaticDirectory, "", "directory holding the built frontend"},
}

// ServerConfig captures configuration needed to run the server.
type ServerConfig struct {
	ApplicationAddress     string
	Environment            string
	ServeMode              ServeMode
	DatabaseDriver         string
	DatabaseDataSourceName string
	FrontendURL            string
	SendGridAPIKey         string
	EmailFromAddress       string
	EmailFromName          string
	PushoverAppToken       string
	PushoverUserKey        string
	AdminUsername          string
	AdminPassword          string
	CookieSecret           string
	SessionRedisURL        string
	StaticDirectory        string
}

func (config ServerConfig) production() bool {
	return config.Environment == environmentProduction
}

// DatabaseOpener opens a database connection using the provided configuration.
type DatabaseOpener func(storage.Config) (*gorm.DB, error)

// ServerApplication constructs and executes the server command.
type ServerApplication struct {
	configurationLoader *viper.Viper
	databaseOpener      DatabaseOpener
	environmentFiles    []string
}

// NewServerApplication creates a ServerApplication with default dependencies.
func NewServerApplication() *ServerApplication {
	return &ServerApplication{
		configurationLoader: viper.New(),
		databaseOpener:      storage.OpenDatabase,
		environmentFiles:    []string{defaultEnvironmentFile},
	}
}

// WithDatabaseOpener overrides the database opener dependency.
func (application *ServerApplication) WithDatabaseOpener(databaseOpener DatabaseOpener) *ServerApplication {
	application.databaseOpener = databaseOpener
	return application
}

// WithEnvironmentFiles replaces the dotenv files read before flags are resolved.
func (application *ServerApplication) WithEnvironmentFiles(paths ...string) *ServerApplication {
	application.environmentFiles = paths
	return application
}

// Command builds the Cobra command for the server.
func (application *ServerApplication) Command() (*cobra.Command, error) {
	rootCommand := &cobra.Command{
		Use:   commandUseName,
		Short: commandShortDescription,
		Long:  commandLongDescription,
		RunE:  application.runCommand,
	}

	if loadErr := application.loadEnvironmentFiles(); loadErr != nil {
		return nil, loadErr
	}

	if configurationErr := application.configureCommand(rootCommand); configurationErr != nil {
		return nil, configurationErr
	}

	return rootCommand, nil
}

// loadEnvironmentFiles reads dotenv files that exist. Variables already set in the process win.
func (application *ServerApplication) loadEnvironmentFiles() error {
	for _, path := range application.environmentFiles {
		loadErr := godotenv.Load(path)
		if loadErr == nil || errors.Is(loadErr, fs.ErrNotExist) {
			continue
		}
		return fmt.Errorf("%s %s: %w", environmentFileError, path, loadErr)
	}
	return nil
}

func (application *ServerApplication) configureCommand(command *cobra.Command) error {
	commandFlags := command.Flags()
	for _, entry := range configurationEntries {
		application.configurationLoader.SetDefault(entry.environmentKey, entry.defaultValue)
		commandFlags.String(entry.flagName, entry.defaultValue, entry.usage)
	}
	application.configurationLoader.AutomaticEnv()

	for _, entry := range configurationEntries {
		if bindErr := application.bindFlag(commandFlags, entry.environmentKey, entry.flagName); bindErr != nil {
			return bindErr
		}
		if environmentErr := application.applyEnvironmentConfiguration(commandFlags, entry.environmentKey, entry.flagName); environmentErr != nil {
			return environmentErr
		}
	}

	return nil
}

func (application *ServerApplication) bindFlag(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	flag := flagSet.Lookup(flagName)
	if flag == nil {
		return fmt.Errorf(flagNotDefinedMessage, flagName)
	}

	if bindErr := application.configurationLoader.BindPFlag(environmentKey, flag); bindErr != nil {
		return bindErr
	}

	return nil
}

func (application *ServerApplication) applyEnvironmentConfiguration(flagSet *pflag.FlagSet, environmentKey string, flagName string) error {
	environmentValue, environmentFound := os.LookupEnv(environmentKey)
	if !environmentFound {
		return nil
	}

	if setErr := flagSet.Set(flagName, environmentValue); setErr != nil {
		return fmt.Errorf("%s: %w", environmentConfigurationError, setErr)
	}

	return nil
}

func (application *ServerApplication) loadServerConfig() (ServerConfig, error) {
	loader := application.configurationLoader
	serveMode, serveModeErr := ParseServeMode(loader.GetString(environmentKeyServeMode))
	if serveModeErr != nil {
		return ServerConfig{}, serveModeErr
	}
	return ServerConfig{
		ApplicationAddress:     strings.TrimSpace(loader.GetString(environmentKeyApplicationAddress)),
		Environment:            strings.ToLower(strings.TrimSpace(loader.GetString(environmentKeyEnvironment))),
		ServeMode:              serveMode,
		DatabaseDriver:         strings.TrimSpace(loader.GetString(environmentKeyDatabaseDriver)),
		DatabaseDataSourceName: strings.TrimSpace(loader.GetString(environmentKeyDatabaseDataSource)),
		FrontendURL:            strings.TrimRight(strings.TrimSpace(loader.GetString(environmentKeyFrontendURL)), "/"),
		SendGridAPIKey:         strings.TrimSpace(loader.GetString(environmentKeySendGridAPIKey)),
		EmailFromAddress:       strings.TrimSpace(loader.GetString(environmentKeyEmailFromAddress)),
		EmailFromName:          strings.TrimSpace(loader.GetString(environmentKeyEmailFromName)),
		PushoverAppToken:       strings.TrimSpace(loader.GetString(environmentKeyPushoverAppToken)),
		PushoverUserKey:        strings.TrimSpace(loader.GetString(environmentKeyPushoverUserKey)),
		AdminUsername:          strings.TrimSpace(loader.GetString(environmentKeyAdminUsername)),
		AdminPassword:          loader.GetString(environmentKeyAdminPassword),
		CookieSecret:           strings.TrimSpace(loader.GetString(environmentKeyCookieSecret)),
		SessionRedisURL:        strings.TrimSpace(loader.GetString(environmentKeySessionRedisURL)),
		StaticDirectory:        strings.TrimSpace(loader.GetString(environmentKeyStaticDirectory)),
	}, nil
}

func (application *ServerApplication) runCommand(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf("%s: %s", unexpectedArgumentsMessage, strings.Join(arguments, " "))
	}

	serverConfig, configErr := application.loadServerConfig()
	if configErr != nil {
		return configErr
	}

	if validationErr := application.ensureRequiredConfiguration(serverConfig); validationErr != nil {
		return validationErr
	}

	logger, loggerErr := newLogger(serverConfig)
	if loggerErr != nil {
		return fmt.Errorf("%s: %w", loggerCreationErrorMessage, loggerErr)
	}
	defer func() {
		_ = logger.Sync()
	}()

	signalContext, stopSignals := signal.NotifyContext(commandContext(command), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	runtime, runtimeErr := application.buildRuntime(signalContext, serverConfig, logger)
	if runtimeErr != nil {
		return runtimeErr
	}
	runtime.start(signalContext)
	defer runtime.stop()

	httpServer := &http.Server{
		Addr:              serverConfig.ApplicationAddress,
		Handler:           runtime.router,
		ReadHeaderTimeout: readHeaderTimeoutSeconds * time.Second,
	}

	serveErrors := make(chan error, 1)
	go func() {
		logger.Info(logEventListening,
			zap.String(logFieldAddress, serverConfig.ApplicationAddress),
			zap.String("mode", string(serverConfig.ServeMode)),
			zap.String("env", serverConfig.Environment),
		)
		serveErrors <- httpServer.ListenAndServe()
	}()

	select {
	case serveErr := <-serveErrors:
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", serveErr)
		}
		return nil
	case <-signalContext.Done():
	}

	logger.Info(logEventShuttingDown)
	shutdownContext, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if shutdownErr := httpServer.Shutdown(shutdownContext); shutdownErr != nil {
		return fmt.Errorf("server shutdown: %w", shutdownErr)
	}
	return nil
}

func (application *ServerApplication) ensureRequiredConfiguration(configuration ServerConfig) error {
	var missingParameters []string

	if configuration.ServeMode.servesAPI() && configuration.DatabaseDataSourceName == "" {
		missingParameters = append(missingParameters, flagNameDatabaseDataSource)
	}

	if configuration.ServeMode == ServeModeWeb && configuration.StaticDirectory == "" {
		missingParameters = append(missingParameters, flagNameStaticDirectory)
	}

	if len(missingParameters) == 0 {
		return nil
	}

	return fmt.Errorf("%s: %s", missingConfigurationMessage, strings.Join(missingParameters, ", "))
}

func newLogger(configuration ServerConfig) (*zap.Logger, error) {
	if configuration.production() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func commandContext(command *cobra.Command) context.Context {
	if ctx := command.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func main() {
	application := NewServerApplication()
	rootCommand, commandErr := application.Command()
	if commandErr != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", commandInitializationFailure, commandErr)
		os.Exit(1)
	}

	if executeErr := rootCommand.Execute(); executeErr != nil {
		os.Exit(1)
	}
}
