package dto

import "net/http"

// errorStatusMap maps domain error codes to HTTP status codes
var errorStatusMap = map[string]int{
	"VALIDATION_ERROR":      http.StatusBadRequest,
	"INVALID_INPUT":         http.StatusBadRequest,
	"INVALID_COMPONENT":     http.StatusBadRequest,
	"INCOMPLETE_DOCUMENT":   http.StatusUnprocessableEntity,
	"INVALID_JUSTIFICATION": http.StatusBadRequest,
	"NOT_FOUND":             http.StatusNotFound,
	"ALREADY_EXISTS":        http.StatusConflict,
	"ALREADY_IN_PROGRESS":   http.StatusConflict,
	"CONCURRENCY_CONFLICT":  http.StatusConflict,
	"INVALID_STATE":         http.StatusConflict,
	"AUTHORITY_REJECTED":    http.StatusUnprocessableEntity,
	"AUTHORITY_UNAVAILABLE": http.StatusServiceUnavailable,
	"INCONSISTENT_STATE":    http.StatusConflict,
	"CONFIGURATION_ERROR":   http.StatusInternalServerError,
	"UNAUTHORIZED":          http.StatusUnauthorized,
	"FORBIDDEN":             http.StatusForbidden,
}

// HTTPStatusForCode returns the HTTP status for a domain error code
func HTTPStatusForCode(code string) int {
	if status, ok := errorStatusMap[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// NormalizeErrorCode maps unknown codes to a generic internal error code
func NormalizeErrorCode(code string) string {
	if _, ok := errorStatusMap[code]; ok {
		return code
	}
	return "INTERNAL_ERROR"
}
