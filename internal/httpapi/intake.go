package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aggiex/accelerator/internal/metrics"
	"github.com/aggiex/accelerator/internal/model"
	"github.com/aggiex/accelerator/internal/notifications"
	"github.com/aggiex/accelerator/internal/storage"
	"github.com/aggiex/accelerator/internal/task"
	"github.com/aggiex/accelerator/internal/verification"
)

const (
	endpointApply            = "apply"
	endpointContacts         = "contacts"
	endpointNewsletter       = "newsletter"
	endpointSendVerification = "send_verification"
	endpointVerify           = "verify"

	outcomeCreated   = "created"
	outcomeUpdated   = "updated"
	outcomeInvalid   = "invalid"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
	outcomeSent      = "sent"
	outcomeVerified  = "verified"
	outcomeExpired   = "expired"

	pushNotificationJobName = "push_notification"

	messageApplicationSubmitted = "Application submitted successfully! We'll review your application and be in touch soon."
	messageContactAdded         = "Contact added successfully!"
	messageNewsletterSubscribed = "Successfully subscribed to newsletter and podcast notifications!"
	messageVerificationSent     = "Verification email sent successfully"

	redirectMessageInvalidToken = "Invalid verification token"
	redirectMessageExpiredToken = "Verification token has expired"
	redirectStatusSuccess       = "success"
	redirectStatusError         = "error"
)

// IntakeHandlers serves the public application, contact and verification endpoints.
type IntakeHandlers struct {
	contacts     *storage.ContactStore
	applications *storage.ApplicationStore
	workflow     *verification.Workflow
	jobs         task.Submitter
	notifier     notifications.PushNotifier
	metrics      *metrics.Metrics
	errors       ErrorResponder
	frontendURL  string
	logger       *zap.Logger
}

type IntakeHandlersConfig struct {
	Contacts     *storage.ContactStore
	Applications *storage.ApplicationStore
	Workflow     *verification.Workflow
	Jobs         task.Submitter
	Notifier     notifications.PushNotifier
	Metrics      *metrics.Metrics
	Errors       ErrorResponder
	FrontendURL  string
	Logger       *zap.Logger
}

func NewIntakeHandlers(config IntakeHandlersConfig) *IntakeHandlers {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IntakeHandlers{
		contacts:     config.Contacts,
		applications: config.Applications,
		workflow:     config.Workflow,
		jobs:         config.Jobs,
		notifier:     resolvePushNotifier(config.Notifier, logger),
		metrics:      config.Metrics,
		errors:       config.Errors,
		frontendURL:  strings.TrimRight(strings.TrimSpace(config.FrontendURL), "/"),
		logger:       logger,
	}
}

func resolvePushNotifier(notifier notifications.PushNotifier, logger *zap.Logger) notifications.PushNotifier {
	if notifier == nil {
		return notifications.NewLoggingPushNotifier(logger)
	}
	return notifier
}

type applyRequest struct {
	FirstName            string `json:"firstName"`
	LastName             string `json:"lastName"`
	Email                string `json:"email"`
	Affiliation          string `json:"affiliation"`
	Role                 string `json:"role"`
	Message              string `json:"message"`
	NewsletterSubscribed *bool  `json:"newsletterSubscribed"`
	PodcastNotifications *bool  `json:"podcastNotifications"`
}

type contactRequest struct {
	Email                string   `json:"email"`
	FirstName            *string  `json:"firstName"`
	LastName             *string  `json:"lastName"`
	Source               string   `json:"source"`
	Interests            []string `json:"interests"`
	NewsletterSubscribed *bool    `json:"newsletterSubscribed"`
	PodcastNotifications *bool    `json:"podcastNotifications"`
}

type newsletterRequest struct {
	Email     string  `json:"email"`
	FirstName *string `json:"firstName"`
	Source    string  `json:"source"`
}

type sendVerificationRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	Source    string `json:"source"`
}

// Apply records an accelerator application together with the applicant's contact.
func (handlers *IntakeHandlers) Apply(context *gin.Context) {
	var payload applyRequest
	if bindErr := context.ShouldBindJSON(&payload); bindErr != nil {
		handlers.metrics.RecordSubmission(endpointApply, outcomeInvalid)
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorMessageInvalidBody})
		return
	}

	submission, validationErr := model.ValidateApplication(model.ApplicationInput{
		FirstName:            payload.FirstName,
		LastName:             payload.LastName,
		Email:                payload.Email,
		Affiliation:          payload.Affiliation,
		Role:                 payload.Role,
		Message:              payload.Message,
		NewsletterSubscribed: payload.NewsletterSubscribed,
		PodcastNotifications: payload.PodcastNotifications,
	})
	if validationErr != nil {
		handlers.metrics.RecordSubmission(endpointApply, outcomeInvalid)
		handlers.errors.Respond(context, "validate_application_failed", validationErr)
		return
	}

	requestContext := context.Request.Context()
	exists, existsErr := handlers.applications.ExistsForEmail(requestContext, submission.Email)
	if existsErr != nil {
		handlers.fail(context, endpointApply, "find_application_failed", existsErr)
		return
	}
	if exists {
		handlers.metrics.RecordSubmission(endpointApply, outcomeDuplicate)
		handlers.errors.Respond(context, "duplicate_application", storage.ErrDuplicateApplication)
		return
	}

	if _, upsertErr := handlers.contacts.UpsertContact(requestContext, storage.ContactUpsert{
		Email:                submission.Email,
		FirstName:            &submission.FirstName,
		LastName:             &submission.LastName,
		Source:               model.ContactSourceApplication,
		DefaultInterests:     []string{string(submission.Role), string(submission.Affiliation)},
		NewsletterSubscribed: &submission.NewsletterSubscribed,
		PodcastNotifications: &submission.PodcastNotifications,
	}); upsertErr != nil {
		handlers.fail(context, endpointApply, "save_application_contact_failed", upsertErr)
		return
	}

	application, createErr := handlers.applications.CreateApplication(requestContext, submission)
	if errors.Is(createErr, storage.ErrDuplicateApplication) {
		handlers.metrics.RecordSubmission(endpointApply, outcomeDuplicate)
		handlers.errors.Respond(context, "duplicate_application", createErr)
		return
	}
	if createErr != nil {
		handlers.fail(context, endpointApply, "save_application_failed", createErr)
		return
	}

	handlers.notify(notifications.ApplicationReceived(submission.FirstName, submission.LastName, submission.Email, string(submission.Role)))
	handlers.metrics.RecordSubmission(endpointApply, outcomeCreated)
	context.JSON(http.StatusCreated, gin.H{
		jsonKeySuccess: true,
		jsonKeyMessage: messageApplicationSubmitted,
		"id":           application.ID,
	})
}

// CreateContact adds or updates a marketing contact.
func (handlers *IntakeHandlers) CreateContact(context *gin.Context) {
	var payload contactRequest
	if bindErr := context.ShouldBindJSON(&payload); bindErr != nil {
		handlers.metrics.RecordSubmission(endpointContacts, outcomeInvalid)
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorMessageInvalidBody})
		return
	}
	if emailErr := model.ValidateEmail(payload.Email); emailErr != nil {
		handlers.metrics.RecordSubmission(endpointContacts, outcomeInvalid)
		handlers.errors.Respond(context, "validate_contact_failed", emailErr)
		return
	}

	source := strings.TrimSpace(payload.Source)
	if source == "" {
		source = model.ContactSourceNewsletter
	}
	interests := payload.Interests
	if interests == nil {
		interests = []string{}
	}
	result, upsertErr := handlers.contacts.UpsertContact(context.Request.Context(), storage.ContactUpsert{
		Email:                payload.Email,
		FirstName:            payload.FirstName,
		LastName:             payload.LastName,
		Source:               source,
		Interests:            interests,
		NewsletterSubscribed: boolWithDefault(payload.NewsletterSubscribed, true),
		PodcastNotifications: boolWithDefault(payload.PodcastNotifications, true),
	})
	if upsertErr != nil {
		handlers.fail(context, endpointContacts, "save_contact_failed", upsertErr)
		return
	}

	handlers.metrics.RecordSubmission(endpointContacts, upsertOutcome(result))
	context.JSON(http.StatusCreated, gin.H{
		jsonKeySuccess: true,
		jsonKeyMessage: messageContactAdded,
		"contact":      result.Contact,
	})
}

// SubscribeNewsletter opts a contact into both the newsletter and podcast notifications.
func (handlers *IntakeHandlers) SubscribeNewsletter(context *gin.Context) {
	var payload newsletterRequest
	if bindErr := context.ShouldBindJSON(&payload); bindErr != nil {
		handlers.metrics.RecordSubmission(endpointNewsletter, outcomeInvalid)
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorMessageInvalidBody})
		return
	}
	if emailErr := model.ValidateEmail(payload.Email); emailErr != nil {
		handlers.metrics.RecordSubmission(endpointNewsletter, outcomeInvalid)
		handlers.errors.Respond(context, "validate_newsletter_failed", emailErr)
		return
	}

	source := strings.TrimSpace(payload.Source)
	if source == "" {
		source = model.ContactSourcePodcast
	}
	subscribed := true
	result, upsertErr := handlers.contacts.UpsertContact(context.Request.Context(), storage.ContactUpsert{
		Email:                payload.Email,
		FirstName:            payload.FirstName,
		Source:               source,
		NewsletterSubscribed: &subscribed,
		PodcastNotifications: &subscribed,
	})
	if upsertErr != nil {
		handlers.fail(context, endpointNewsletter, "save_newsletter_subscription_failed", upsertErr)
		return
	}

	handlers.metrics.RecordSubmission(endpointNewsletter, upsertOutcome(result))
	context.JSON(http.StatusOK, gin.H{
		jsonKeySuccess: true,
		jsonKeyMessage: messageNewsletterSubscribed,
		"contact":      result.Contact,
	})
}

// SendVerification emails a fresh verification link.
func (handlers *IntakeHandlers) SendVerification(context *gin.Context) {
	var payload sendVerificationRequest
	if bindErr := context.ShouldBindJSON(&payload); bindErr != nil {
		handlers.metrics.RecordSubmission(endpointSendVerification, outcomeInvalid)
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorMessageInvalidBody})
		return
	}
	if strings.TrimSpace(payload.Email) == "" || strings.TrimSpace(payload.Source) == "" {
		handlers.metrics.RecordSubmission(endpointSendVerification, outcomeInvalid)
		handlers.errors.Respond(context, "validate_verification_failed", verification.ErrMissingVerificationFields)
		return
	}
	if emailErr := model.ValidateEmail(payload.Email); emailErr != nil {
		handlers.metrics.RecordSubmission(endpointSendVerification, outcomeInvalid)
		handlers.errors.Respond(context, "validate_verification_failed", emailErr)
		return
	}

	result, issueErr := handlers.workflow.Issue(context.Request.Context(), verification.IssueRequest{
		Email:     payload.Email,
		FirstName: payload.FirstName,
		Source:    payload.Source,
	})
	if issueErr != nil {
		handlers.fail(context, endpointSendVerification, "send_verification_failed", issueErr)
		return
	}

	handlers.metrics.RecordSubmission(endpointSendVerification, outcomeSent)
	context.JSON(http.StatusOK, gin.H{
		jsonKeySuccess: true,
		jsonKeyMessage: messageVerificationSent,
		"email":        result.Email,
	})
}

// VerifyEmail redeems a token and always redirects to the frontend verification page.
func (handlers *IntakeHandlers) VerifyEmail(context *gin.Context) {
	token := context.Param("token")
	result, redeemErr := handlers.workflow.Redeem(context.Request.Context(), token)

	var query string
	switch {
	case redeemErr == nil:
		handlers.metrics.RecordSubmission(endpointVerify, outcomeVerified)
		query = "status=" + redirectStatusSuccess +
			"&email=" + url.QueryEscape(result.Email) +
			"&source=" + url.QueryEscape(result.Source)
	case errors.Is(redeemErr, verification.ErrInvalidToken):
		handlers.metrics.RecordSubmission(endpointVerify, outcomeInvalid)
		query = errorRedirectQuery(redirectMessageInvalidToken)
	case errors.Is(redeemErr, verification.ErrTokenExpired):
		handlers.metrics.RecordSubmission(endpointVerify, outcomeExpired)
		query = errorRedirectQuery(redirectMessageExpiredToken)
	default:
		handlers.metrics.RecordSubmission(endpointVerify, outcomeFailed)
		handlers.logger.Error("verify_email_failed", zap.Error(redeemErr))
		query = errorRedirectQuery(errorMessageServer)
	}

	context.Redirect(http.StatusFound, handlers.frontendURL+"/verify/"+url.PathEscape(token)+"?"+query)
}

// Analytics summarizes the contact list.
func (handlers *IntakeHandlers) Analytics(context *gin.Context) {
	analytics, analyticsErr := handlers.contacts.Analytics(context.Request.Context())
	if analyticsErr != nil {
		handlers.errors.Respond(context, "contact_analytics_failed", analyticsErr)
		return
	}
	context.JSON(http.StatusOK, analytics)
}

func (handlers *IntakeHandlers) fail(context *gin.Context, endpoint string, logEvent string, err error) {
	handlers.metrics.RecordSubmission(endpoint, outcomeFailed)
	handlers.errors.Respond(context, logEvent, err)
}

func (handlers *IntakeHandlers) notify(notification notifications.PushNotification) {
	submitPushNotification(handlers.jobs, handlers.notifier, notification)
}

func submitPushNotification(jobs task.Submitter, notifier notifications.PushNotifier, notification notifications.PushNotification) {
	if jobs == nil || notifier == nil {
		return
	}
	jobs.Submit(task.Job{
		Name: pushNotificationJobName,
		Run: func(ctx context.Context) error {
			return notifier.Notify(ctx, notification)
		},
	})
}

func errorRedirectQuery(message string) string {
	return "status=" + redirectStatusError + "&message=" + url.QueryEscape(message)
}

func upsertOutcome(result storage.UpsertResult) string {
	if result.Created {
		return outcomeCreated
	}
	return outcomeUpdated
}

func boolWithDefault(value *bool, fallback bool) *bool {
	if value != nil {
		return value
	}
	return &fallback
}
