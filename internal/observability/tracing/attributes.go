package tracing

import (
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Substrings of attribute keys that never leave the process. Provider
// payloads carry card data, hosted checkout links and Paystack email tokens.
var sensitiveAttributeKeys = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"authorization",
	"access_code",
	"signature",
	"email",
	"card_number",
	"cvc",
	"cvv",
	"account_number",
}

// SafeAttributes drops attributes with sensitive keys.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if isSensitiveKey(string(attr.Key)) {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

type codedError interface {
	ErrorKind() string
}

// SafeError replaces an error with its type, plus the error kind when the
// chain carries one. Provider messages may echo request data, so they are
// never recorded.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	var coded codedError
	if errors.As(err, &coded) && coded.ErrorKind() != "" {
		return fmt.Errorf("%T(%s)", err, coded.ErrorKind())
	}
	return fmt.Errorf("%T", err)
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, needle := range sensitiveAttributeKeys {
		if strings.Contains(key, needle) {
			return true
		}
	}
	return false
}
