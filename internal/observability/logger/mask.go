package logger

import (
	"net/http"
	"strings"
)

var sensitiveHeaders = map[string]struct{}{
	"authorization":        {},
	"cookie":               {},
	"stripe-signature":     {},
	"x-paystack-signature": {},
}

// MaskSecret keeps only the last 4 characters of a key or signature.
func MaskSecret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

// MaskHeaders returns a copy of headers with credentials and signatures masked.
func MaskHeaders(headers http.Header) map[string]string {
	masked := make(map[string]string, len(headers))
	for key, values := range headers {
		joined := strings.Join(values, ",")
		if _, ok := sensitiveHeaders[strings.ToLower(strings.TrimSpace(key))]; ok {
			joined = MaskSecret(joined)
		}
		masked[key] = joined
	}
	return masked
}
