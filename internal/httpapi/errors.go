package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aggiex/accelerator/internal/model"
	"github.com/aggiex/accelerator/internal/storage"
	"github.com/aggiex/accelerator/internal/verification"
)

const (
	jsonKeyError   = "error"
	jsonKeyDetails = "details"
	jsonKeySuccess = "success"
	jsonKeyMessage = "message"

	errorMessageServer               = "Server error. Please try again later."
	errorMessageInvalidBody          = "Invalid request body"
	errorMessageDuplicateApplication = "Application already submitted with this email"
	errorMessageMissingVerification  = "Email and source are required"
	errorMessageVerificationEmail    = "Failed to send verification email"
)

// ErrorResponder maps domain errors onto HTTP responses. Internal details are only exposed in development.
type ErrorResponder struct {
	logger      *zap.Logger
	development bool
}

func NewErrorResponder(logger *zap.Logger, development bool) ErrorResponder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return ErrorResponder{logger: logger, development: development}
}

// Respond writes the response for err and logs unexpected failures under logEvent.
func (responder ErrorResponder) Respond(context *gin.Context, logEvent string, err error) {
	var validationErr *model.ValidationError
	switch {
	case errors.As(err, &validationErr):
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: validationErr.Message})
	case errors.Is(err, storage.ErrDuplicateApplication):
		context.JSON(http.StatusConflict, gin.H{jsonKeyError: errorMessageDuplicateApplication})
	case errors.Is(err, verification.ErrMissingVerificationFields):
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorMessageMissingVerification})
	case errors.Is(err, verification.ErrVerificationEmailFailed):
		responder.serverError(context, logEvent, errorMessageVerificationEmail, err)
	default:
		responder.serverError(context, logEvent, errorMessageServer, err)
	}
}

func (responder ErrorResponder) serverError(context *gin.Context, logEvent string, message string, err error) {
	responder.logger.Error(logEvent,
		zap.String("path", context.Request.URL.Path),
		zap.Error(err),
	)
	body := gin.H{jsonKeyError: message}
	if responder.development && err != nil {
		body[jsonKeyDetails] = err.Error()
	}
	context.JSON(http.StatusInternalServerError, body)
}
