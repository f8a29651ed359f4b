package errors

import "fmt"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AppError carries the error taxonomy used across the bot: a stable code,
// an operator-facing message, a user-facing message, and retry metadata.
type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

// NewTransientStoreError wraps a record-store failure (network, timeout, or
// conflict-retry exhaustion). Retryable: the transaction is all-or-nothing,
// so a retry can never double-apply a reward.
func NewTransientStoreError(cause error) *AppError {
	var underlying string
	if cause != nil {
		underlying = cause.Error()
	}

	return &AppError{
		Code:        "E200",
		Message:     fmt.Sprintf("record store error: %s", underlying),
		UserMessage: "Temporary problem, please try again later",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

// NewNotFoundError marks a missing subject or referrer record. Handled
// locally as a no-op outcome, never escalated.
func NewNotFoundError(msg string) *AppError {
	return &AppError{
		Code:        "E404",
		Message:     msg,
		UserMessage: "",
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewInvalidReferralError marks a referral that violates the attribution
// rules, e.g. a self-referral.
func NewInvalidReferralError(msg string) *AppError {
	return &AppError{
		Code:        "E100",
		Message:     msg,
		UserMessage: "",
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewTelegramAPIError wraps a failure talking to the Telegram Bot API.
func NewTelegramAPIError(cause error) *AppError {
	return &AppError{
		Code:        "E300",
		Message:     "telegram api error",
		UserMessage: "Service is temporarily unavailable",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}
