package httpapi

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aggiex/accelerator/internal/storage"
)

const (
	serverRunningMessage  = "AggieX Server Running!"
	databaseConnected     = "connected"
	databaseFailed        = "error"
	logsNotPersistedNote  = "Application logs are written to stdout as structured JSON and are not stored by the service."
	errorMessageDebugFail = "Database check failed"
)

// ServiceStatus reports which optional integrations are configured.
type ServiceStatus struct {
	SendGrid      bool `json:"sendgrid"`
	Pushover      bool `json:"pushover"`
	RedisSessions bool `json:"redisSessions"`
}

type SystemHandlersConfig struct {
	Database     *gorm.DB
	Applications *storage.ApplicationStore
	Environment  string
	Addr         string
	CORSOrigin   string
	Services     ServiceStatus
	StartedAt    time.Time
	Logger       *zap.Logger
}

// SystemHandlers serves liveness, debug and admin health endpoints.
type SystemHandlers struct {
	config SystemHandlersConfig
	now    func() time.Time
	logger *zap.Logger
}

func NewSystemHandlers(config SystemHandlersConfig) *SystemHandlers {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.StartedAt.IsZero() {
		config.StartedAt = time.Now()
	}
	return &SystemHandlers{config: config, now: time.Now, logger: logger}
}

func (handlers *SystemHandlers) Test(context *gin.Context) {
	context.JSON(http.StatusOK, gin.H{
		jsonKeyMessage: serverRunningMessage,
		"timestamp":    handlers.timestamp(),
		"addr":         handlers.config.Addr,
	})
}

// Debug reports database connectivity and the application count. It is only routed outside production.
func (handlers *SystemHandlers) Debug(context *gin.Context) {
	requestContext := context.Request.Context()
	if pingErr := storage.Ping(requestContext, handlers.config.Database); pingErr != nil {
		handlers.logger.Error("debug_database_ping_failed", zap.Error(pingErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorMessageDebugFail, jsonKeyDetails: pingErr.Error()})
		return
	}
	count, countErr := handlers.config.Applications.CountApplications(requestContext)
	if countErr != nil {
		handlers.logger.Error("debug_count_applications_failed", zap.Error(countErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorMessageDebugFail, jsonKeyDetails: countErr.Error()})
		return
	}
	context.JSON(http.StatusOK, gin.H{
		"database":  databaseConnected,
		"appCount":  count,
		"timestamp": handlers.timestamp(),
	})
}

func (handlers *SystemHandlers) Health(context *gin.Context) {
	var memoryStats runtime.MemStats
	runtime.ReadMemStats(&memoryStats)

	database := gin.H{"status": databaseConnected, "connection": true, jsonKeyError: nil}
	if pingErr := storage.Ping(context.Request.Context(), handlers.config.Database); pingErr != nil {
		handlers.logger.Warn("health_database_ping_failed", zap.Error(pingErr))
		database = gin.H{"status": databaseFailed, "connection": false, jsonKeyError: pingErr.Error()}
	}

	context.JSON(http.StatusOK, gin.H{
		"timestamp": handlers.timestamp(),
		"server": gin.H{
			"status":        "running",
			"uptimeSeconds": handlers.now().Sub(handlers.config.StartedAt).Seconds(),
			"goVersion":     runtime.Version(),
			"goroutines":    runtime.NumGoroutine(),
			"heapAlloc":     memoryStats.HeapAlloc,
			"environment":   handlers.config.Environment,
		},
		"database": database,
		"services": handlers.config.Services,
		"cors": gin.H{
			"origin":  handlers.config.CORSOrigin,
			"enabled": true,
		},
	})
}

func (handlers *SystemHandlers) Logs(context *gin.Context) {
	context.JSON(http.StatusOK, gin.H{
		"timestamp":    handlers.timestamp(),
		jsonKeyMessage: "Log retrieval requested",
		"note":         logsNotPersistedNote,
		"recentActivity": []string{
			"Admin authentication attempts are logged as admin_login_attempt events",
			"System health checks are available at /api/admin/health",
			"Failed login attempts trigger security notifications",
		},
	})
}

func (handlers *SystemHandlers) timestamp() string {
	return handlers.now().UTC().Format(time.RFC3339Nano)
}
