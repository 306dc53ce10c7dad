package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

type ErrorCode string

const (
	// Validation
	ErrCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidStatusTransition ErrorCode = "INVALID_STATUS_TRANSITION"

	// Not found
	ErrCodePersonNotFound      ErrorCode = "PERSON_NOT_FOUND"
	ErrCodeReservationNotFound ErrorCode = "RESERVATION_NOT_FOUND"
	ErrCodeCertificateNotFound ErrorCode = "CERTIFICATE_NOT_FOUND"
	ErrCodeTemplateNotFound    ErrorCode = "TEMPLATE_NOT_FOUND"

	// Tokens
	ErrCodeTokenNotFound ErrorCode = "TOKEN_NOT_FOUND"
	ErrCodeTokenExpired  ErrorCode = "TOKEN_EXPIRED"
	ErrCodeTokenUsed     ErrorCode = "TOKEN_USED"

	// Database
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"

	// Delivery
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"

	// Trigger surfaces
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"

	ErrCodeExternalService   ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout           ErrorCode = "TIMEOUT_ERROR"
	ErrCodeResourceNotFound  ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeBusinessRule      ErrorCode = "BUSINESS_RULE_VIOLATION"
	ErrCodeAuthentication    ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
)

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Field returns the offending field name carried by a validation error.
func (e *StandardError) Field() string {
	if e.Metadata == nil {
		return ""
	}
	f, _ := e.Metadata["field"].(string)
	return f
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// CodeOf returns the code of the first StandardError in err's chain.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

func NewValidationError(field, reason string) *StandardError {
	e := newError(ErrCodeValidationFailed, "Validation failed", fmt.Sprintf("%s: %s", field, reason), false, nil)
	e.Metadata = map[string]interface{}{"field": field, "reason": reason}
	return e
}

func NewInvalidStatusTransitionError(from, to string) *StandardError {
	e := newError(ErrCodeInvalidStatusTransition, "Status transition not allowed", fmt.Sprintf("%s -> %s", from, to), false, nil)
	e.Metadata = map[string]interface{}{"from": from, "to": to}
	return e
}

func NewPersonNotFoundError(id int64) *StandardError {
	return newError(ErrCodePersonNotFound, "Person not found", fmt.Sprintf("participantId: %d", id), false, nil)
}

func NewReservationNotFoundError(id int64) *StandardError {
	return newError(ErrCodeReservationNotFound, "Reservation not found", fmt.Sprintf("reservationId: %d", id), false, nil)
}

func NewCertificateNotFoundError(id int64) *StandardError {
	return newError(ErrCodeCertificateNotFound, "Certificate not found", fmt.Sprintf("certificateId: %d", id), false, nil)
}

func NewTemplateNotFoundError(event, channel string) *StandardError {
	return newError(ErrCodeTemplateNotFound, "Template not found", fmt.Sprintf("event: %s, channel: %s", event, channel), false, nil)
}

func NewTokenNotFoundError() *StandardError {
	return newError(ErrCodeTokenNotFound, "Completion token not found", "", false, nil)
}

func NewTokenExpiredError() *StandardError {
	return newError(ErrCodeTokenExpired, "Completion token has expired", "", false, nil)
}

func NewTokenUsedError() *StandardError {
	return newError(ErrCodeTokenUsed, "Completion token was already used", "", false, nil)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true, err)
}

func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, "Database query execution error",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true, err)
}

func NewDatabaseInsertFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseInsertFailed, "Database insert operation failed", err.Error(), true, err)
}

func NewNotificationSendFailedError(event string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("event: %s, error: %s", event, err.Error()), true, err)
}

func NewUnauthorizedError(details string) *StandardError {
	return newError(ErrCodeUnauthorized, "Unauthorized", details, false, nil)
}

func NewBusinessRuleError(message, details string) *StandardError {
	return newError(ErrCodeBusinessRule, message, details, false, nil)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("External service '%s' error", service), err.Error(), true, err)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), err.Error(), true, err)
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return newError(ErrCodeResourceNotFound, fmt.Sprintf("Resource not found in %s", service), details, false, nil)
}

func NewAuthenticationError(details string) *StandardError {
	return newError(ErrCodeAuthentication, "Authentication failed", details, false, nil)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// BPMNErrorMapping maps internal codes to the error codes caught by boundary
// events in the reservation and reminder process models.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeValidationFailed:         "INVALID_INPUT",
	ErrCodeInvalidStatusTransition:  "INVALID_STATUS_TRANSITION",
	ErrCodePersonNotFound:           "PERSON_NOT_FOUND",
	ErrCodeReservationNotFound:      "RESERVATION_NOT_FOUND",
	ErrCodeCertificateNotFound:      "CERTIFICATE_NOT_FOUND",
	ErrCodeTemplateNotFound:         "TEMPLATE_NOT_FOUND",
	ErrCodeTokenNotFound:            "TOKEN_INVALID",
	ErrCodeTokenExpired:             "TOKEN_INVALID",
	ErrCodeTokenUsed:                "TOKEN_INVALID",
	ErrCodeDatabaseConnectionFailed: "DATABASE_ERROR",
	ErrCodeQueryExecutionFailed:     "DATABASE_ERROR",
	ErrCodeDatabaseInsertFailed:     "DATABASE_ERROR",
	ErrCodeNotificationSendFailed:   "NOTIFICATION_SEND_FAILED",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeDatabaseInsertFailed,
		ErrCodeExternalService:
		return 3
	case ErrCodeTimeout:
		return 2
	default:
		// includes NOTIFICATION_SEND_FAILED: one-shot notifications need an explicit re-trigger
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	if field := stdErr.Field(); field != "" {
		vars["errorField"] = field
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "TRANSITION"):
		return "VALIDATION"
	case strings.HasSuffix(codeStr, "NOT_FOUND"):
		return "NOT_FOUND"
	case strings.HasPrefix(codeStr, "TOKEN"):
		return "TOKEN"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY"):
		return "DATABASE"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "UNAUTHORIZED") || strings.Contains(codeStr, "AUTHENTICATION"):
		return "AUTH"
	default:
		return "OTHER"
	}
}
