package biz

import "errors"

// Sentinel errors returned by repository implementations. The use cases
// translate them into tagged application errors.
var (
	// ErrNotFound the transfer does not exist
	ErrNotFound = errors.New("transfer not found")

	// ErrDuplicateToken the share token is already taken
	ErrDuplicateToken = errors.New("share token already exists")

	// ErrLimitReached the conditional increment matched no row
	ErrLimitReached = errors.New("download limit reached")

	// ErrRevoked the transfer was revoked before the increment
	ErrRevoked = errors.New("transfer revoked")

	// ErrApprovalNotFound the approval request does not exist
	ErrApprovalNotFound = errors.New("approval request not found")
)
