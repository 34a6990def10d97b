package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/aggiex/accelerator/internal/metrics"
	"github.com/aggiex/accelerator/internal/notifications"
	"github.com/aggiex/accelerator/internal/session"
	"github.com/aggiex/accelerator/internal/task"
)

const (
	defaultAdminSessionTTL = 24 * time.Hour

	adminCookieName     = "aggiex_admin"
	adminCookieTokenKey = "session_token"

	loginReasonSuccess  = "successful_login"
	loginReasonFailure  = "failed_login"
	loginReasonReported = "authentication_attempt"
	loginResultSuccess  = "success"
	loginResultFailure  = "failure"
	unknownUsername     = "unknown"
	userAgentLogLength  = 100

	errorMessageAdminConfiguration = "Server configuration error"
	errorMessageAdminLogin         = "Authentication server error"
	errorMessageSessionValidation  = "Session validation error"
	errorMessageUnauthorized       = "unauthorized"

	messageAuthenticated      = "Authentication successful"
	messageInvalidCredentials = "Invalid credentials"
	messageMissingSession     = "No session token provided"
	messageInvalidSession     = "Invalid session token"
	messageExpiredSession     = "Session expired"
	messageValidSession       = "Session valid"
	messageLoggedOut          = "Logged out successfully"
	messageAttemptLogged      = "Authentication attempt logged"

	contextKeyAdminSession = "httpapi_admin_session"
)

var ErrAdminNotConfigured = errors.New("admin_not_configured")

// AdminConfig holds the single admin credential and session settings.
type AdminConfig struct {
	Username     string
	PasswordHash []byte
	SessionTTL   time.Duration
	CookieSecret string
	SecureCookie bool
}

// HashAdminPassword prepares a configured plain text password for AdminConfig.
func HashAdminPassword(password string) ([]byte, error) {
	if password == "" {
		return nil, ErrAdminNotConfigured
	}
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// AdminHandlers serves the admin sign in endpoints and guards admin-only routes.
type AdminHandlers struct {
	config   AdminConfig
	sessions session.Store
	cookies  *sessions.CookieStore
	jobs     task.Submitter
	notifier notifications.PushNotifier
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *zap.Logger
}

func NewAdminHandlers(config AdminConfig, store session.Store, jobs task.Submitter, notifier notifications.PushNotifier, metricsRecorder *metrics.Metrics, logger *zap.Logger) *AdminHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = defaultAdminSessionTTL
	}
	config.Username = strings.TrimSpace(config.Username)
	var cookieStore *sessions.CookieStore
	if secret := strings.TrimSpace(config.CookieSecret); secret != "" {
		cookieStore = sessions.NewCookieStore([]byte(secret))
		cookieStore.Options = &sessions.Options{
			Path:     "/",
			MaxAge:   int(config.SessionTTL.Seconds()),
			HttpOnly: true,
			Secure:   config.SecureCookie,
			SameSite: http.SameSiteLaxMode,
		}
	}
	return &AdminHandlers{
		config:   config,
		sessions: store,
		cookies:  cookieStore,
		jobs:     jobs,
		notifier: resolvePushNotifier(notifier, logger),
		metrics:  metricsRecorder,
		now:      time.Now,
		logger:   logger,
	}
}

func (handlers *AdminHandlers) WithClock(now func() time.Time) *AdminHandlers {
	if now != nil {
		handlers.now = now
	}
	return handlers
}

type adminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionTokenRequest struct {
	SessionToken string `json:"sessionToken"`
}

type authAttemptRequest struct {
	Username  string `json:"username"`
	IP        string `json:"ip"`
	UserAgent string `json:"userAgent"`
	Timestamp string `json:"timestamp"`
	Success   bool   `json:"success"`
	Reason    string `json:"reason"`
}

type authAttemptHeaders struct {
	Origin        string `json:"origin,omitempty"`
	Referer       string `json:"referer,omitempty"`
	XForwardedFor string `json:"x-forwarded-for,omitempty"`
}

type authAttemptLogEntry struct {
	Timestamp string             `json:"timestamp"`
	IP        string             `json:"ip"`
	UserAgent string             `json:"userAgent"`
	Username  string             `json:"username"`
	Success   bool               `json:"success"`
	Reason    string             `json:"reason"`
	Headers   authAttemptHeaders `json:"headers"`
}

func (handlers *AdminHandlers) Login(context *gin.Context) {
	if handlers.config.Username == "" || len(handlers.config.PasswordHash) == 0 {
		handlers.logger.Error("admin_credentials_missing", zap.Error(ErrAdminNotConfigured))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorMessageAdminConfiguration, jsonKeySuccess: false})
		return
	}

	var payload adminLoginRequest
	if bindErr := context.ShouldBindJSON(&payload); bindErr != nil {
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorMessageInvalidBody, jsonKeySuccess: false})
		return
	}

	succeeded := handlers.credentialsMatch(payload.Username, payload.Password)
	entry := handlers.attemptEntry(context, payload.Username, "", "", succeeded, "")
	handlers.recordAttempt(entry)

	if !succeeded {
		context.JSON(http.StatusUnauthorized, gin.H{
			jsonKeySuccess: false,
			jsonKeyMessage: messageInvalidCredentials,
			"reason":       loginReasonFailure,
		})
		return
	}

	token, tokenErr := session.NewToken()
	if tokenErr != nil {
		handlers.logger.Error("admin_session_token_failed", zap.Error(tokenErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorMessageAdminLogin, jsonKeySuccess: false})
		return
	}
	now := handlers.now().UTC()
	adminSession := session.Session{
		Username:  handlers.config.Username,
		CreatedAt: now,
		ExpiresAt: now.Add(handlers.config.SessionTTL),
	}
	if saveErr := handlers.sessions.Save(context.Request.Context(), token, adminSession, handlers.config.SessionTTL); saveErr != nil {
		handlers.logger.Error("admin_session_save_failed", zap.Error(saveErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorMessageAdminLogin, jsonKeySuccess: false})
		return
	}
	handlers.writeCookie(context, token)

	context.JSON(http.StatusOK, gin.H{
		jsonKeySuccess: true,
		jsonKeyMessage: messageAuthenticated,
		"sessionToken": token,
		"expiresAt":    adminSession.ExpiresAt.Format(time.RFC3339Nano),
	})
}

func (handlers *AdminHandlers) ValidateSession(context *gin.Context) {
	token := handlers.requestToken(context, true)
	if token == "" {
		context.JSON(http.StatusUnauthorized, gin.H{jsonKeySuccess: false, jsonKeyMessage: messageMissingSession})
		return
	}

	adminSession, status, message := handlers.lookup(context, token)
	if status != http.StatusOK {
		if status == http.StatusInternalServerError {
			context.JSON(status, gin.H{jsonKeyError: message, jsonKeySuccess: false})
			return
		}
		context.JSON(status, gin.H{jsonKeySuccess: false, jsonKeyMessage: message})
		return
	}

	context.JSON(http.StatusOK, gin.H{
		jsonKeySuccess: true,
		jsonKeyMessage: messageValidSession,
		"username":     adminSession.Username,
		"expiresAt":    adminSession.ExpiresAt.UTC().Format(time.RFC3339Nano),
	})
}

func (handlers *AdminHandlers) Logout(context *gin.Context) {
	if token := handlers.requestToken(context, true); token != "" {
		if deleteErr := handlers.sessions.Delete(context.Request.Context(), token); deleteErr != nil {
			handlers.logger.Warn("admin_session_delete_failed", zap.Error(deleteErr))
		}
	}
	handlers.clearCookie(context)
	context.JSON(http.StatusOK, gin.H{jsonKeySuccess: true, jsonKeyMessage: messageLoggedOut})
}

// AuthAttempt records a login attempt reported by the frontend.
func (handlers *AdminHandlers) AuthAttempt(context *gin.Context) {
	var payload authAttemptRequest
	if bindErr := context.ShouldBindJSON(&payload); bindErr != nil {
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorMessageInvalidBody})
		return
	}
	reason := payload.Reason
	if reason == "" {
		reason = loginReasonReported
	}
	entry := handlers.attemptEntry(context, payload.Username, payload.IP, payload.UserAgent, payload.Success, reason)
	if payload.Timestamp != "" {
		entry.Timestamp = payload.Timestamp
	}
	handlers.recordAttempt(entry)

	context.JSON(http.StatusOK, gin.H{
		jsonKeySuccess: true,
		jsonKeyMessage: messageAttemptLogged,
		"logEntry":     entry,
	})
}

// RequireSession admits requests that carry a live admin session as a bearer token or cookie.
func (handlers *AdminHandlers) RequireSession() gin.HandlerFunc {
	return func(context *gin.Context) {
		token := bearerToken(context)
		if token == "" {
			token = handlers.cookieToken(context)
		}
		if token == "" {
			context.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{jsonKeyError: errorMessageUnauthorized})
			return
		}
		adminSession, status, _ := handlers.lookup(context, token)
		if status != http.StatusOK {
			context.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{jsonKeyError: errorMessageUnauthorized})
			return
		}
		context.Set(contextKeyAdminSession, adminSession)
		context.Next()
	}
}

func (handlers *AdminHandlers) credentialsMatch(username string, password string) bool {
	usernameMatches := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(handlers.config.Username)) == 1
	passwordMatches := bcrypt.CompareHashAndPassword(handlers.config.PasswordHash, []byte(password)) == nil
	return usernameMatches && passwordMatches
}

// lookup loads token and deletes it when expired. Status is 200 for a live session.
func (handlers *AdminHandlers) lookup(context *gin.Context, token string) (session.Session, int, string) {
	requestContext := context.Request.Context()
	adminSession, loadErr := handlers.sessions.Load(requestContext, token)
	if errors.Is(loadErr, session.ErrSessionNotFound) {
		return session.Session{}, http.StatusUnauthorized, messageInvalidSession
	}
	if loadErr != nil {
		handlers.logger.Error("admin_session_load_failed", zap.Error(loadErr))
		return session.Session{}, http.StatusInternalServerError, errorMessageSessionValidation
	}
	if adminSession.Expired(handlers.now()) {
		if deleteErr := handlers.sessions.Delete(requestContext, token); deleteErr != nil {
			handlers.logger.Warn("admin_session_delete_failed", zap.Error(deleteErr))
		}
		return session.Session{}, http.StatusUnauthorized, messageExpiredSession
	}
	return adminSession, http.StatusOK, ""
}

func (handlers *AdminHandlers) attemptEntry(context *gin.Context, username string, ip string, userAgent string, succeeded bool, reason string) authAttemptLogEntry {
	if strings.TrimSpace(username) == "" {
		username = unknownUsername
	}
	if ip == "" {
		ip = context.ClientIP()
	}
	if userAgent == "" {
		userAgent = context.Request.UserAgent()
	}
	if reason == "" {
		reason = loginReasonFailure
		if succeeded {
			reason = loginReasonSuccess
		}
	}
	return authAttemptLogEntry{
		Timestamp: handlers.now().UTC().Format(time.RFC3339Nano),
		IP:        ip,
		UserAgent: userAgent,
		Username:  username,
		Success:   succeeded,
		Reason:    reason,
		Headers: authAttemptHeaders{
			Origin:        context.GetHeader("Origin"),
			Referer:       context.GetHeader("Referer"),
			XForwardedFor: context.GetHeader("X-Forwarded-For"),
		},
	}
}

func (handlers *AdminHandlers) recordAttempt(entry authAttemptLogEntry) {
	userAgent := entry.UserAgent
	if len(userAgent) > userAgentLogLength {
		userAgent = userAgent[:userAgentLogLength]
	}
	logFields := []zap.Field{
		zap.String("ip", entry.IP),
		zap.String("username", entry.Username),
		zap.Bool("success", entry.Success),
		zap.String("reason", entry.Reason),
		zap.String("ua", userAgent),
	}
	if entry.Success {
		handlers.metrics.RecordAdminLogin(loginResultSuccess)
		handlers.logger.Info("admin_login_attempt", logFields...)
	} else {
		handlers.metrics.RecordAdminLogin(loginResultFailure)
		handlers.logger.Warn("admin_login_attempt", logFields...)
	}
	submitPushNotification(handlers.jobs, handlers.notifier, notifications.AdminLoginAttempt(entry.Success, entry.IP, entry.Username))
}

func (handlers *AdminHandlers) requestToken(context *gin.Context, readBody bool) string {
	if readBody {
		var payload sessionTokenRequest
		if bindErr := context.ShouldBindJSON(&payload); bindErr == nil {
			if token := strings.TrimSpace(payload.SessionToken); token != "" {
				return token
			}
		}
	}
	return handlers.cookieToken(context)
}

func (handlers *AdminHandlers) cookieToken(context *gin.Context) string {
	if handlers.cookies == nil {
		return ""
	}
	cookieSession, cookieErr := handlers.cookies.Get(context.Request, adminCookieName)
	if cookieErr != nil {
		handlers.logger.Debug("admin_cookie_rejected", zap.Error(cookieErr))
		return ""
	}
	token, _ := cookieSession.Values[adminCookieTokenKey].(string)
	return token
}

func (handlers *AdminHandlers) writeCookie(context *gin.Context, token string) {
	if handlers.cookies == nil {
		return
	}
	cookieSession, _ := handlers.cookies.New(context.Request, adminCookieName)
	cookieSession.Values[adminCookieTokenKey] = token
	if saveErr := cookieSession.Save(context.Request, context.Writer); saveErr != nil {
		handlers.logger.Warn("admin_cookie_save_failed", zap.Error(saveErr))
	}
}

func (handlers *AdminHandlers) clearCookie(context *gin.Context) {
	if handlers.cookies == nil {
		return
	}
	cookieSession, _ := handlers.cookies.New(context.Request, adminCookieName)
	cookieSession.Options.MaxAge = -1
	if saveErr := cookieSession.Save(context.Request, context.Writer); saveErr != nil {
		handlers.logger.Warn("admin_cookie_clear_failed", zap.Error(saveErr))
	}
}

func bearerToken(context *gin.Context) string {
	authorizationHeader := strings.TrimSpace(context.GetHeader("Authorization"))
	if !strings.HasPrefix(authorizationHeader, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authorizationHeader, "Bearer "))
}
