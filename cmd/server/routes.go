package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/aggiex/accelerator/internal/httpapi"
	"github.com/aggiex/accelerator/internal/metrics"
)

const (
	apiRoutePrefix              = "/api"
	apiRouteApply               = "/apply"
	apiRouteContacts            = "/contacts"
	apiRouteContactsAnalytics   = "/contacts/analytics"
	apiRouteNewsletterSubscribe = "/newsletter/subscribe"
	apiRouteSendVerification    = "/email/send-verification"
	apiRouteVerifyEmail         = "/email/verify/:token"
	apiRouteTest                = "/test"
	apiRouteDebug               = "/debug"
	adminRoutePrefix            = "/admin"
	adminRouteLogin             = "/login"
	adminRouteValidateSession   = "/validate-session"
	adminRouteLogout            = "/logout"
	adminRouteAuthAttempt       = "/auth-attempt"
	adminRouteHealth            = "/health"
	adminRouteLogs              = "/logs"
	metricsRoute                = "/metrics"

	corsHeaderAuthorization = "Authorization"
	corsHeaderContentType   = "Content-Type"
	httpMethodGet           = "GET"
	httpMethodOptions       = "OPTIONS"
	httpMethodPost          = "POST"
	corsMaxAge              = 12 * time.Hour
)

var (
	corsAllowedMethods = []string{httpMethodPost, httpMethodGet, httpMethodOptions}
	corsAllowedHeaders = []string{corsHeaderAuthorization, corsHeaderContentType}
	corsExposedHeaders = []string{corsHeaderContentType, "RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset"}
)

type apiRoutes struct {
	intake      *httpapi.IntakeHandlers
	admin       *httpapi.AdminHandlers
	system      *httpapi.SystemHandlers
	rateLimiter *httpapi.RateLimiter
	metrics     *metrics.Metrics
	frontendURL string
	exposeDebug bool
}

func frontendCORS(frontendURL string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     []string{frontendURL},
		AllowMethods:     corsAllowedMethods,
		AllowHeaders:     corsAllowedHeaders,
		ExposeHeaders:    corsExposedHeaders,
		AllowCredentials: true,
		MaxAge:           corsMaxAge,
	})
}

func registerAPIRoutes(router *gin.Engine, routes apiRoutes) {
	router.GET(metricsRoute, gin.WrapH(routes.metrics.Handler()))

	corsMiddleware := frontendCORS(routes.frontendURL)
	registerAPIPreflightRoutes(router, corsMiddleware)

	apiGroup := router.Group(apiRoutePrefix)
	apiGroup.Use(corsMiddleware)
	apiGroup.Use(routes.rateLimiter.Middleware())

	apiGroup.POST(apiRouteApply, routes.intake.Apply)
	apiGroup.POST(apiRouteContacts, routes.intake.CreateContact)
	apiGroup.GET(apiRouteContactsAnalytics, routes.intake.Analytics)
	apiGroup.POST(apiRouteNewsletterSubscribe, routes.intake.SubscribeNewsletter)
	apiGroup.POST(apiRouteSendVerification, routes.intake.SendVerification)
	apiGroup.GET(apiRouteVerifyEmail, routes.intake.VerifyEmail)

	apiGroup.GET(apiRouteTest, routes.system.Test)
	if routes.exposeDebug {
		apiGroup.GET(apiRouteDebug, routes.system.Debug)
	}

	adminGroup := apiGroup.Group(adminRoutePrefix)
	adminGroup.POST(adminRouteLogin, routes.admin.Login)
	adminGroup.POST(adminRouteValidateSession, routes.admin.ValidateSession)
	adminGroup.POST(adminRouteLogout, routes.admin.Logout)
	adminGroup.POST(adminRouteAuthAttempt, routes.admin.AuthAttempt)
	adminGroup.GET(adminRouteHealth, routes.admin.RequireSession(), routes.system.Health)
	adminGroup.GET(adminRouteLogs, routes.admin.RequireSession(), routes.system.Logs)
}

// registerAPIPreflightRoutes answers CORS preflight requests, which match no handler of their own.
func registerAPIPreflightRoutes(router *gin.Engine, corsMiddleware gin.HandlerFunc) {
	router.OPTIONS(apiRoutePrefix+"/*path", corsMiddleware)
}

// registerFrontendRoutes serves the built frontend for every path the API did not claim.
func registerFrontendRoutes(router *gin.Engine, staticHandler *httpapi.StaticSiteHandler) {
	router.NoRoute(staticHandler.Serve)
}
