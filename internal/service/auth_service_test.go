package service_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billscope/internal/config"
	"billscope/internal/domain"
	"billscope/internal/service"
)

func jwtConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret-that-is-long-enough",
		AccessTokenExpiry: 15 * time.Minute,
		Issuer:            "billscope-test",
	}
}

func TestAuthService_IssueAndValidate(t *testing.T) {
	svc := service.NewAuthService(jwtConfig())
	userID := uuid.New()

	token, expiry, err := svc.IssueToken(userID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiry, 5*time.Second)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "billscope-test", claims.Issuer)
}

func TestAuthService_ValidateToken_WrongSecret(t *testing.T) {
	token, _, err := service.NewAuthService(jwtConfig()).IssueToken(uuid.New())
	require.NoError(t, err)

	other := jwtConfig()
	other.Secret = "a-different-secret-entirely"
	_, err = service.NewAuthService(other).ValidateToken(token)

	assert.Error(t, err)
}

func TestAuthService_ValidateToken_Expired(t *testing.T) {
	cfg := jwtConfig()
	cfg.AccessTokenExpiry = -time.Minute
	token, _, err := service.NewAuthService(cfg).IssueToken(uuid.New())
	require.NoError(t, err)

	_, err = service.NewAuthService(jwtConfig()).ValidateToken(token)

	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func signClaims(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestAuthService_ValidateToken_Rejections(t *testing.T) {
	secret := []byte(jwtConfig().Secret)
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))
	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name: "wrong audience",
			token: func(t *testing.T) string {
				return signClaims(t, jwt.SigningMethodHS256, secret, &service.Claims{
					RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future, Audience: jwt.ClaimStrings{"refresh"}},
					UserID:           uuid.New(),
				})
			},
		},
		{
			name: "missing user",
			token: func(t *testing.T) string {
				return signClaims(t, jwt.SigningMethodHS256, secret, &service.Claims{
					RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future, Audience: jwt.ClaimStrings{"access"}},
				})
			},
		},
		{
			name: "unsigned",
			token: func(t *testing.T) string {
				return signClaims(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, &service.Claims{
					RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future, Audience: jwt.ClaimStrings{"access"}},
					UserID:           uuid.New(),
				})
			},
		},
		{
			name:  "garbage",
			token: func(*testing.T) string { return "not.a.token" },
		},
	}
	svc := service.NewAuthService(jwtConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token(t))
			assert.Error(t, err)
		})
	}
}

func TestAuthService_ValidateToken_AudienceErrorIsUnauthorized(t *testing.T) {
	token := signClaims(t, jwt.SigningMethodHS256, []byte(jwtConfig().Secret), &service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Audience:  jwt.ClaimStrings{"refresh"},
		},
		UserID: uuid.New(),
	})

	_, err := service.NewAuthService(jwtConfig()).ValidateToken(token)

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
