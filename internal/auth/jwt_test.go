package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("secret", "kingshare")

	token, err := m.GenerateAccessToken("u-1", "owner@example.com", RoleAdmin)
	require.NoError(t, err)

	claims, err := m.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "owner@example.com", claims.Email)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, "u-1", claims.Subject)
}

func TestJWTDefaultRole(t *testing.T) {
	m := NewJWTManager("secret", "kingshare")

	token, err := m.GenerateAccessToken("u-1", "a@example.com", "")
	require.NoError(t, err)

	claims, err := m.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, claims.Role)
}

func TestJWTRejects(t *testing.T) {
	m := NewJWTManager("secret", "kingshare")

	other, err := NewJWTManager("other", "kingshare").GenerateAccessToken("u-1", "", "")
	require.NoError(t, err)
	wrongIssuer, err := NewJWTManager("secret", "someone-else").GenerateAccessToken("u-1", "", "")
	require.NoError(t, err)
	expired, err := NewJWTManager("secret", "kingshare").WithTTL(-time.Minute).GenerateAccessToken("u-1", "", "")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", other},
		{"wrong issuer", wrongIssuer},
		{"expired", expired},
		{"garbage", "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.VerifyAccessToken(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestExtractTokenFromHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{"valid", "Bearer abc.def", "abc.def", false},
		{"lowercase scheme", "bearer abc", "abc", false},
		{"missing scheme", "abc.def.ghi", "", true},
		{"too short", "Bear", "", true},
		{"empty token", "Bearer   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractTokenFromHeader(tt.header)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
