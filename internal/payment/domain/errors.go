package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable kind carried by every PaymentError.
type ErrorCode string

const (
	CodePayment       ErrorCode = "PAYMENT_ERROR"
	CodeGateway       ErrorCode = "GATEWAY_ERROR"
	CodeValidation    ErrorCode = "VALIDATION_ERROR"
	CodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
)

// Sentinel kinds usable with errors.Is against any PaymentError of that code.
var (
	ErrPayment       = &PaymentError{Code: CodePayment}
	ErrGateway       = &PaymentError{Code: CodeGateway}
	ErrValidation    = &PaymentError{Code: CodeValidation}
	ErrConfiguration = &PaymentError{Code: CodeConfiguration}
)

var (
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrNotInitialized        = errors.New("gateway_not_initialized")
)

// PaymentError is the base of the payment error taxonomy.
type PaymentError struct {
	Code     ErrorCode
	Message  string
	Gateway  GatewayName
	Metadata map[string]any
	Err      error
}

func (e *PaymentError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Gateway != "" {
		msg = fmt.Sprintf("%s: %s", e.Gateway, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// ErrorKind exposes the code without the message, for span recording.
func (e *PaymentError) ErrorKind() string {
	if e == nil {
		return ""
	}
	return string(e.Code)
}

func (e *PaymentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on code so callers can test kinds with errors.Is(err, ErrValidation).
func (e *PaymentError) Is(target error) bool {
	t, ok := target.(*PaymentError)
	if !ok || e == nil || t == nil {
		return false
	}
	if t.Code == CodePayment {
		return true
	}
	return e.Code == t.Code
}

func NewPaymentError(message string, gateway GatewayName, err error) *PaymentError {
	return &PaymentError{Code: CodePayment, Message: message, Gateway: gateway, Err: err}
}

// NewGatewayError wraps a provider failure with the request context that caused it.
func NewGatewayError(gateway GatewayName, message string, err error, metadata map[string]any) *PaymentError {
	return &PaymentError{
		Code:     CodeGateway,
		Message:  message,
		Gateway:  gateway,
		Metadata: metadata,
		Err:      err,
	}
}

func NewValidationError(gateway GatewayName, message string) *PaymentError {
	return &PaymentError{Code: CodeValidation, Message: message, Gateway: gateway}
}

func NewConfigurationError(gateway GatewayName, message string) *PaymentError {
	return &PaymentError{Code: CodeConfiguration, Message: message, Gateway: gateway}
}

// AsPaymentError returns err as a PaymentError, wrapping anything else into a
// gateway error tagged with the unknown gateway.
func AsPaymentError(err error) *PaymentError {
	if err == nil {
		return nil
	}
	var perr *PaymentError
	if errors.As(err, &perr) {
		return perr
	}
	return NewGatewayError(GatewayUnknown, "unexpected payment failure", err, nil)
}
