package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BVSokolov/udemy-prostore/pkg/middleware"
)

const (
	testSecret      = "test-secret-key-for-jwt-signing"
	testUserID      = "0d9a7f43-5e1c-4b7a-8f2d-3c6e9b1a2d45"
	testSubjectID   = "5b2e8c1d-7a4f-4e3b-9c6d-1f0a2b3c4d5e"
	testGatewayUser = "9e8d7c6b-5a4f-4e3d-8c2b-1a0f9e8d7c6b"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func generateToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	tokenString, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return tokenString
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"user_id": testUserID,
		"sub":     testSubjectID,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
}

func newRequest(header, value string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/products/p/reviews/mine", nil)
	if header != "" {
		r.Header.Set(header, value)
	}
	return r
}

func TestCurrentSession(t *testing.T) {
	provider := NewSessionProvider(Config{JWTSecret: testSecret}, newTestLogger())

	subOnly := validClaims()
	delete(subOnly, "user_id")

	noSubject := jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	noExpiry := validClaims()
	delete(noExpiry, "exp")

	nonUUID := validClaims()
	nonUUID["user_id"] = "user-123"

	nonUUIDSub := validClaims()
	delete(nonUUIDSub, "user_id")
	nonUUIDSub["sub"] = "admin"

	tests := []struct {
		name   string
		req    *http.Request
		wantID string
		wantOK bool
	}{
		{"user_id claim", newRequest("Authorization", "Bearer "+generateToken(t, testSecret, jwt.SigningMethodHS256, validClaims())), testUserID, true},
		{"lower case scheme", newRequest("Authorization", "bearer "+generateToken(t, testSecret, jwt.SigningMethodHS256, validClaims())), testUserID, true},
		{"sub fallback", newRequest("Authorization", "Bearer "+generateToken(t, testSecret, jwt.SigningMethodHS256, subOnly)), testSubjectID, true},
		{"no subject", newRequest("Authorization", "Bearer "+generateToken(t, testSecret, jwt.SigningMethodHS256, noSubject)), "", false},
		{"expired", newRequest("Authorization", "Bearer "+generateToken(t, testSecret, jwt.SigningMethodHS256, expired)), "", false},
		{"missing exp", newRequest("Authorization", "Bearer "+generateToken(t, testSecret, jwt.SigningMethodHS256, noExpiry)), "", false},
		{"wrong secret", newRequest("Authorization", "Bearer "+generateToken(t, "other-secret", jwt.SigningMethodHS256, validClaims())), "", false},
		{"wrong algorithm", newRequest("Authorization", "Bearer "+generateToken(t, testSecret, jwt.SigningMethodHS512, validClaims())), "", false},
		{"basic scheme", newRequest("Authorization", "Basic dXNlcjpwYXNz"), "", false},
		{"garbage token", newRequest("Authorization", "Bearer not.a.jwt"), "", false},
		{"anonymous", newRequest("", ""), "", false},
		{"gateway header not trusted", newRequest(GatewayUserHeader, testGatewayUser), "", false},
		{"non-uuid user_id", newRequest("Authorization", "Bearer "+generateToken(t, testSecret, jwt.SigningMethodHS256, nonUUID)), "", false},
		{"non-uuid sub", newRequest("Authorization", "Bearer "+generateToken(t, testSecret, jwt.SigningMethodHS256, nonUUIDSub)), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := provider.CurrentSession(tt.req)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id.UserID)
		})
	}
}

func TestCurrentSession_TrustedGatewayHeader(t *testing.T) {
	provider := NewSessionProvider(Config{JWTSecret: testSecret, TrustGatewayHeader: true}, newTestLogger())

	id, ok := provider.CurrentSession(newRequest(GatewayUserHeader, " "+testGatewayUser+" "))
	assert.True(t, ok)
	assert.Equal(t, testGatewayUser, id.UserID)

	// A bearer token wins over the header.
	r := newRequest("Authorization", "Bearer "+generateToken(t, testSecret, jwt.SigningMethodHS256, validClaims()))
	r.Header.Set(GatewayUserHeader, testGatewayUser)
	id, ok = provider.CurrentSession(r)
	assert.True(t, ok)
	assert.Equal(t, testUserID, id.UserID)

	// A header that is not a user id is anonymous.
	_, ok = provider.CurrentSession(newRequest(GatewayUserHeader, "user-789"))
	assert.False(t, ok)

	// A bad token does not fall back to the header.
	r = newRequest("Authorization", "Bearer not.a.jwt")
	r.Header.Set(GatewayUserHeader, testGatewayUser)
	_, ok = provider.CurrentSession(r)
	assert.False(t, ok)
}

func TestCurrentSession_Issuer(t *testing.T) {
	provider := NewSessionProvider(Config{JWTSecret: testSecret, Issuer: "user-service"}, newTestLogger())

	claims := validClaims()
	_, ok := provider.CurrentSession(newRequest("Authorization", "Bearer "+generateToken(t, testSecret, jwt.SigningMethodHS256, claims)))
	assert.False(t, ok, "missing issuer is rejected")

	claims["iss"] = "user-service"
	id, ok := provider.CurrentSession(newRequest("Authorization", "Bearer "+generateToken(t, testSecret, jwt.SigningMethodHS256, claims)))
	assert.True(t, ok)
	assert.Equal(t, testUserID, id.UserID)
}

func TestCurrentSession_NoSecretIgnoresTokens(t *testing.T) {
	provider := NewSessionProvider(Config{}, newTestLogger())

	_, ok := provider.CurrentSession(newRequest("Authorization", "Bearer "+generateToken(t, testSecret, jwt.SigningMethodHS256, validClaims())))
	assert.False(t, ok)
}

func TestResolver_FeedsIdentifyMiddleware(t *testing.T) {
	provider := NewSessionProvider(Config{JWTSecret: testSecret}, newTestLogger())

	var got string
	handler := middleware.Identify(provider.Resolver())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = middleware.UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest("Authorization", "Bearer "+generateToken(t, testSecret, jwt.SigningMethodHS256, validClaims())))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, testUserID, got)
}
