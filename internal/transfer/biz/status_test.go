package biz_test

import (
	"testing"
	"time"

	"github.com/kingshare/transfer-backend/internal/transfer/biz"
	"github.com/stretchr/testify/assert"
)

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name string
		t    biz.Transfer
		want biz.Status
	}{
		{"active", biz.Transfer{Status: biz.StatusActive, ExpirationAt: future}, biz.StatusActive},
		{"unlimited", biz.Transfer{Status: biz.StatusActive, ExpirationAt: future, DownloadCount: 1000}, biz.StatusActive},
		{"revoked wins over expired", biz.Transfer{Status: biz.StatusRevoked, ExpirationAt: past}, biz.StatusRevoked},
		{"expired wins over exhausted", biz.Transfer{Status: biz.StatusActive, ExpirationAt: past, DownloadLimit: intPtr(1), DownloadCount: 1}, biz.StatusExpired},
		{"exhausted", biz.Transfer{Status: biz.StatusActive, ExpirationAt: future, DownloadLimit: intPtr(3), DownloadCount: 3}, biz.StatusExhausted},
		{"zero limit", biz.Transfer{Status: biz.StatusActive, ExpirationAt: future, DownloadLimit: intPtr(0)}, biz.StatusExhausted},
		{"below limit", biz.Transfer{Status: biz.StatusActive, ExpirationAt: future, DownloadLimit: intPtr(3), DownloadCount: 2}, biz.StatusActive},
		{"at expiration instant", biz.Transfer{Status: biz.StatusActive, ExpirationAt: now}, biz.StatusActive},
		{"advisory expired hint ignored", biz.Transfer{Status: biz.StatusExpired, ExpirationAt: future}, biz.StatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, biz.EffectiveStatus(&tt.t, now))
		})
	}
}

func TestCanManage(t *testing.T) {
	assert.True(t, biz.CanManage(owner, owner.UserID))
	assert.False(t, biz.CanManage(stranger, owner.UserID))
	assert.True(t, biz.CanManage(admin, owner.UserID))
	assert.True(t, biz.CanManage(admin, ""))
	assert.False(t, biz.CanManage(biz.Identity{}, ""))
	assert.False(t, biz.CanManage(owner, ""))
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, biz.RoleAdmin, biz.ParseRole("admin"))
	assert.Equal(t, biz.RoleUser, biz.ParseRole("user"))
	assert.Equal(t, biz.RoleUser, biz.ParseRole("superuser"))
}
