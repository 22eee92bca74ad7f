package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	errNotAdmin           = domainError(http.StatusForbidden, "NOT_ADMIN", "This account does not have dashboard access", nil)
	errRefreshUnavailable = domainError(http.StatusServiceUnavailable, "REFRESH_UNAVAILABLE", "Refresh tokens are not enabled", nil)
	errRefreshInvalid     = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
	errVersionRequired    = domainError(http.StatusPreconditionRequired, "VERSION_REQUIRED", "Send the record version in If-Match or ?version=", nil)
	errUnknownKind        = domainError(http.StatusNotFound, "NOT_FOUND", "Unknown nomination kind", nil)
	errMediaUnavailable   = domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Media storage is not configured", nil)
)
