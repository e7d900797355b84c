// Package validation provides input validation for the coinback API.
package validation

import (
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxDeviceHashLength bounds the client device fingerprint.
const MaxDeviceHashLength = 128

var (
	// uidRegex matches provisioned user IDs (url-safe, bounded).
	uidRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	// deviceHashRegex matches client device fingerprints.
	deviceHashRegex = regexp.MustCompile(`^[A-Za-z0-9:._-]+$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidUID checks if a string is a well-formed user ID
func IsValidUID(uid string) bool {
	return uidRegex.MatchString(uid)
}

// IsValidDeviceHash checks if a string is a plausible device fingerprint
func IsValidDeviceHash(h string) bool {
	return h != "" && len(h) <= MaxDeviceHashLength && deviceHashRegex.MatchString(h)
}

// IsValidIP checks if a string parses as an IPv4/IPv6 address
func IsValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// SanitizeDeviceHash trims a client fingerprint and drops it if malformed.
// A malformed fingerprint is treated as absent rather than rejected: the
// field is optional and fraud scoring handles missing values.
func SanitizeDeviceHash(h string) string {
	h = strings.TrimSpace(h)
	if !IsValidDeviceHash(h) {
		return ""
	}
	return h
}

// ResolveClientIP picks the effective client address: the first entry of
// X-Forwarded-For, then the transport-level address, then the
// client-reported value.
func ResolveClientIP(c *gin.Context, reported string) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if IsValidIP(first) {
			return first
		}
	}
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	reported = strings.TrimSpace(reported)
	if IsValidIP(reported) {
		return reported
	}
	return ""
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// PositiveInt checks if a field is a positive integer
func PositiveInt(field string, value int64) func() *ValidationError {
	return func() *ValidationError {
		if value <= 0 {
			return &ValidationError{Field: field, Message: "must be a positive integer"}
		}
		return nil
	}
}

// NonNegative checks if a numeric field is >= 0
func NonNegative(field string, value float64) func() *ValidationError {
	return func() *ValidationError {
		if value < 0 {
			return &ValidationError{Field: field, Message: "must not be negative"}
		}
		return nil
	}
}
