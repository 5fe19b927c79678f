package core

import (
	"fmt"
	"net/http"
)

// ============================================================================
// Tool Error Protocol
// ============================================================================
//
// Tools report failures to their callers with ToolError wrapped in a
// ToolResponse envelope. The caller (an agent, a chat bridge, a script)
// decides whether to retry based on Category and Retryable.

// ErrorCategory classifies errors for caller retry decisions.
type ErrorCategory string

const (
	// CategoryInputError indicates the request payload was malformed
	// Example: missing user_id, non-positive quantity
	CategoryInputError ErrorCategory = "INPUT_ERROR"

	// CategoryNotFound indicates the requested resource doesn't exist
	// Example: unknown category, item not in cart
	CategoryNotFound ErrorCategory = "NOT_FOUND"

	// CategoryRateLimit indicates the backend asked the caller to slow down
	CategoryRateLimit ErrorCategory = "RATE_LIMIT"

	// CategoryAuthError indicates authentication/authorization failure
	CategoryAuthError ErrorCategory = "AUTH_ERROR"

	// CategoryServiceError indicates the backend failed
	// Usually transient - retry with same payload after backoff
	CategoryServiceError ErrorCategory = "SERVICE_ERROR"
)

// ToolError represents a structured error from a tool capability invocation.
//
//	return &core.ToolError{
//	    Code:      "ITEM_NOT_FOUND",
//	    Message:   "Item not found",
//	    Category:  core.CategoryNotFound,
//	    Details:   map[string]string{"item_id": "42"},
//	}
type ToolError struct {
	// Code is a machine-readable error identifier (e.g., "EMPTY_CART")
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Category groups errors for routing decisions
	Category ErrorCategory `json:"category"`

	// Retryable indicates if the caller may retry the same request
	Retryable bool `json:"retryable"`

	// Details provides additional context
	// Common keys: "status", "hint", "retry_after"
	Details map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *ToolError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// ToolResponse is the standard response envelope for tool capability invocations.
//
//	ToolResponse{Success: true, Data: cartData}
//	ToolResponse{Success: false, Error: &ToolError{...}}
type ToolResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ToolError  `json:"error,omitempty"`
}

// HTTPStatusForCategory returns the appropriate HTTP status code for an error category.
//
// Mapping:
//   - CategoryInputError   → 400 Bad Request
//   - CategoryNotFound     → 404 Not Found
//   - CategoryAuthError    → 401 Unauthorized
//   - CategoryRateLimit    → 429 Too Many Requests
//   - CategoryServiceError → 503 Service Unavailable
//   - Unknown              → 500 Internal Server Error
func HTTPStatusForCategory(category ErrorCategory) int {
	switch category {
	case CategoryInputError:
		return http.StatusBadRequest
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryAuthError:
		return http.StatusUnauthorized
	case CategoryRateLimit:
		return http.StatusTooManyRequests
	case CategoryServiceError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CategoryForHTTPStatus is the inverse of HTTPStatusForCategory, used when a
// tool relays an upstream HTTP failure.
func CategoryForHTTPStatus(status int) ErrorCategory {
	switch {
	case status == http.StatusNotFound:
		return CategoryNotFound
	case status == http.StatusTooManyRequests:
		return CategoryRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CategoryAuthError
	case status >= 400 && status < 500:
		return CategoryInputError
	default:
		return CategoryServiceError
	}
}
