package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusByKind(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindTransferNotFound, http.StatusNotFound},
		{KindTransferRevoked, http.StatusGone},
		{KindTransferExpired, http.StatusGone},
		{KindDownloadLimitReached, http.StatusGone},
		{KindPasswordRequired, http.StatusUnauthorized},
		{KindPasswordIncorrect, http.StatusUnauthorized},
		{KindApprovalRequired, http.StatusForbidden},
		{KindApprovalPending, http.StatusConflict},
		{KindApprovalDenied, http.StatusForbidden},
		{KindTokenSpaceExhausted, http.StatusInternalServerError},
		{KindStorageUnavailable, http.StatusServiceUnavailable},
		{Kind("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, New("test", tt.kind).HTTPStatus())
		})
	}
}

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := New("transfer.get", KindTransferNotFound)
	wrapped := fmt.Errorf("lookup: %w", inner)

	got := Wrap(wrapped, "policy.evaluate", KindInternal)
	assert.Equal(t, KindTransferNotFound, got.Kind)
	assert.Equal(t, "transfer.get", got.Op)
}

func TestStorageIsRetryable(t *testing.T) {
	err := Storage("transfer.create", fmt.Errorf("connection refused"))

	assert.True(t, IsRetryable(err))
	assert.True(t, Is(err, KindStorageUnavailable))
	assert.Contains(t, err.Error(), "connection refused")
	assert.False(t, IsRetryable(New("x", KindTransferExpired)))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindOK, KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("plain")))
	assert.Equal(t, KindApprovalPending, KindOf(New("op", KindApprovalPending)))
	assert.Nil(t, Wrap(nil, "op", KindInternal))
}
