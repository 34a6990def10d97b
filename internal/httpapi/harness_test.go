package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aggiex/accelerator/internal/httpapi"
	"github.com/aggiex/accelerator/internal/metrics"
	"github.com/aggiex/accelerator/internal/notifications"
	"github.com/aggiex/accelerator/internal/session"
	"github.com/aggiex/accelerator/internal/storage"
	"github.com/aggiex/accelerator/internal/task"
	"github.com/aggiex/accelerator/internal/testutil"
	"github.com/aggiex/accelerator/internal/verification"
)

const (
	testFrontendURL   = "https://aggiex.example"
	testAdminUsername = "admin"
	testAdminPassword = "correct horse battery"
	testCookieSecret  = "0123456789abcdef0123456789abcdef"
)

type recordingEmailSender struct {
	mutex    sync.Mutex
	messages []notifications.EmailMessage
	failWith error
}

func (sender *recordingEmailSender) SendEmail(ctx context.Context, message notifications.EmailMessage) error {
	sender.mutex.Lock()
	defer sender.mutex.Unlock()
	if sender.failWith != nil {
		return sender.failWith
	}
	sender.messages = append(sender.messages, message)
	return nil
}

func (sender *recordingEmailSender) sent() []notifications.EmailMessage {
	sender.mutex.Lock()
	defer sender.mutex.Unlock()
	return append([]notifications.EmailMessage(nil), sender.messages...)
}

type recordingPushNotifier struct {
	mutex         sync.Mutex
	notifications []notifications.PushNotification
}

func (notifier *recordingPushNotifier) Notify(ctx context.Context, notification notifications.PushNotification) error {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.notifications = append(notifier.notifications, notification)
	return nil
}

func (notifier *recordingPushNotifier) received() []notifications.PushNotification {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	return append([]notifications.PushNotification(nil), notifier.notifications...)
}

// inlineSubmitter runs jobs on the calling goroutine so side effects are visible when the handler returns.
type inlineSubmitter struct{}

func (inlineSubmitter) Submit(job task.Job) bool {
	_ = job.Run(context.Background())
	return true
}

type testClock struct {
	mutex sync.Mutex
	now   time.Time
}

func (clock *testClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.now
}

func (clock *testClock) Advance(duration time.Duration) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.now = clock.now.Add(duration)
}

type harnessOptions struct {
	development  bool
	adminless    bool
	cookieSecret string
}

type testHarness struct {
	router       *gin.Engine
	database     *gorm.DB
	contacts     *storage.ContactStore
	applications *storage.ApplicationStore
	sender       *recordingEmailSender
	notifier     *recordingPushNotifier
	sessions     *session.MemoryStore
	metrics      *metrics.Metrics
	clock        *testClock
}

func newTestHarness(testingT *testing.T, options harnessOptions) *testHarness {
	testingT.Helper()
	gin.SetMode(gin.TestMode)

	database := testutil.NewMigratedDatabase(testingT)
	clock := &testClock{now: time.Date(2025, time.March, 3, 15, 0, 0, 0, time.UTC)}
	harness := &testHarness{
		database:     database,
		contacts:     storage.NewContactStore(database).WithClock(clock.Now),
		applications: storage.NewApplicationStore(database),
		sender:       &recordingEmailSender{},
		notifier:     &recordingPushNotifier{},
		sessions:     session.NewMemoryStore(),
		metrics:      metrics.New(),
		clock:        clock,
	}

	logger := zap.NewNop()
	jobs := inlineSubmitter{}
	workflow := verification.NewWorkflow(verification.Config{FrontendURL: testFrontendURL}, harness.contacts, harness.sender, jobs, logger).
		WithClock(clock.Now).
		WithEmailRecorder(harness.metrics.RecordEmail)

	intake := httpapi.NewIntakeHandlers(httpapi.IntakeHandlersConfig{
		Contacts:     harness.contacts,
		Applications: harness.applications,
		Workflow:     workflow,
		Jobs:         jobs,
		Notifier:     harness.notifier,
		Metrics:      harness.metrics,
		Errors:       httpapi.NewErrorResponder(logger, options.development),
		FrontendURL:  testFrontendURL + "/",
		Logger:       logger,
	})

	adminConfig := httpapi.AdminConfig{CookieSecret: options.cookieSecret}
	if !options.adminless {
		passwordHash, hashErr := httpapi.HashAdminPassword(testAdminPassword)
		require.NoError(testingT, hashErr)
		adminConfig.Username = testAdminUsername
		adminConfig.PasswordHash = passwordHash
	}
	admin := httpapi.NewAdminHandlers(adminConfig, harness.sessions, jobs, harness.notifier, harness.metrics, logger).
		WithClock(clock.Now)

	system := httpapi.NewSystemHandlers(httpapi.SystemHandlersConfig{
		Database:     database,
		Applications: harness.applications,
		Environment:  "test",
		Addr:         ":3001",
		CORSOrigin:   testFrontendURL,
		Services:     httpapi.ServiceStatus{Pushover: true},
		Logger:       logger,
	})

	router := gin.New()
	api := router.Group("/api")
	api.POST("/apply", intake.Apply)
	api.POST("/contacts", intake.CreateContact)
	api.GET("/contacts/analytics", intake.Analytics)
	api.POST("/newsletter/subscribe", intake.SubscribeNewsletter)
	api.POST("/email/send-verification", intake.SendVerification)
	api.GET("/email/verify/:token", intake.VerifyEmail)
	api.GET("/test", system.Test)
	api.GET("/debug", system.Debug)
	api.POST("/admin/login", admin.Login)
	api.POST("/admin/validate-session", admin.ValidateSession)
	api.POST("/admin/logout", admin.Logout)
	api.POST("/admin/auth-attempt", admin.AuthAttempt)
	api.GET("/admin/health", admin.RequireSession(), system.Health)
	api.GET("/admin/logs", admin.RequireSession(), system.Logs)
	harness.router = router

	return harness
}

func (harness *testHarness) do(method string, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, target, nil)
	} else {
		request = httptest.NewRequest(method, target, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	for name, value := range headers {
		request.Header.Set(name, value)
	}
	recorder := httptest.NewRecorder()
	harness.router.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(testingT *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	testingT.Helper()
	var payload map[string]any
	require.NoError(testingT, json.Unmarshal(recorder.Body.Bytes(), &payload), recorder.Body.String())
	return payload
}

func (harness *testHarness) metricsOutput() string {
	recorder := httptest.NewRecorder()
	harness.metrics.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return recorder.Body.String()
}
