package errors

import (
	"fmt"
	"net/http"
)

// Kind identifies the category of an error. Every failure surfaced to a
// caller carries exactly one Kind.
type Kind string

// Code represents an error kind with business code, HTTP status and message
type Code struct {
	Code      int    // Business error code
	Status    int    // HTTP status code
	Message   string // Error message
	Retryable bool   // Whether a retry may succeed
}

// Error kinds
const (
	KindOK                   Kind = "OK"
	KindTransferNotFound     Kind = "TRANSFER_NOT_FOUND"
	KindTransferRevoked      Kind = "TRANSFER_REVOKED"
	KindTransferExpired      Kind = "TRANSFER_EXPIRED"
	KindDownloadLimitReached Kind = "DOWNLOAD_LIMIT_REACHED"
	KindPasswordRequired     Kind = "PASSWORD_REQUIRED"
	KindPasswordIncorrect    Kind = "PASSWORD_INCORRECT"
	KindApprovalRequired     Kind = "APPROVAL_REQUIRED"
	KindApprovalPending      Kind = "APPROVAL_PENDING"
	KindApprovalDenied       Kind = "APPROVAL_DENIED"
	KindApprovalNotFound     Kind = "APPROVAL_NOT_FOUND"
	KindTokenSpaceExhausted  Kind = "TOKEN_SPACE_EXHAUSTED"
	KindStorageUnavailable   Kind = "STORAGE_UNAVAILABLE"
	KindInvalidArgument      Kind = "INVALID_ARGUMENT"
	KindUnauthorized         Kind = "UNAUTHORIZED"
	KindForbidden            Kind = "FORBIDDEN"
	KindRateLimited          Kind = "RATE_LIMITED"
	KindInternal             Kind = "INTERNAL"
)

// codeMap maps error kinds to their details
var codeMap = map[Kind]Code{
	KindOK: {0, http.StatusOK, "Success", false},

	// Transfer lifecycle (1000-1099)
	KindTransferNotFound:     {1000, http.StatusNotFound, "Transfer not found", false},
	KindTransferRevoked:      {1001, http.StatusGone, "Transfer has been revoked", false},
	KindTransferExpired:      {1002, http.StatusGone, "Transfer has expired", false},
	KindDownloadLimitReached: {1003, http.StatusGone, "Download limit reached", false},
	KindTokenSpaceExhausted:  {1004, http.StatusInternalServerError, "Could not allocate a unique share token", false},

	// Password (1100-1199)
	KindPasswordRequired:  {1100, http.StatusUnauthorized, "Password required", false},
	KindPasswordIncorrect: {1101, http.StatusUnauthorized, "Incorrect password", false},

	// Approval (1200-1299)
	KindApprovalRequired: {1200, http.StatusForbidden, "Owner approval required", false},
	KindApprovalPending:  {1201, http.StatusConflict, "Approval request is pending", false},
	KindApprovalDenied:   {1202, http.StatusForbidden, "Approval request was denied", false},
	KindApprovalNotFound: {1203, http.StatusNotFound, "Approval request not found", false},

	// Common (9000-9999)
	KindInvalidArgument:    {9000, http.StatusBadRequest, "Invalid parameters", false},
	KindUnauthorized:       {9001, http.StatusUnauthorized, "Unauthorized", false},
	KindForbidden:          {9002, http.StatusForbidden, "Forbidden", false},
	KindRateLimited:        {9003, http.StatusTooManyRequests, "Too many requests", true},
	KindStorageUnavailable: {9004, http.StatusServiceUnavailable, "Storage unavailable", true},
	KindInternal:           {9999, http.StatusInternalServerError, "Internal server error", false},
}

// GetCode returns the Code for a given kind
func GetCode(kind Kind) Code {
	if c, ok := codeMap[kind]; ok {
		return c
	}
	return codeMap[KindInternal]
}

// GetHTTPStatus returns HTTP status for a given kind
func GetHTTPStatus(kind Kind) int {
	return GetCode(kind).Status
}

// GetMessage returns the message for a given kind
func GetMessage(kind Kind) string {
	return GetCode(kind).Message
}

// IsClientError checks if the kind represents a client error (4xx)
func IsClientError(kind Kind) bool {
	status := GetHTTPStatus(kind)
	return status >= 400 && status < 500
}

// IsServerError checks if the kind represents a server error (5xx)
func IsServerError(kind Kind) bool {
	return GetHTTPStatus(kind) >= 500
}

// FormatError formats an error message with kind
func FormatError(kind Kind, details ...string) string {
	msg := GetMessage(kind)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
