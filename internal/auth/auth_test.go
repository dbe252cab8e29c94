package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "gymbros.test"}

func TestIssueAndParse(t *testing.T) {
	token, err := Issue(testConfig, "user-1", []string{ScopeWorkoutsWrite, ScopeWorkoutsRead}, time.Hour)
	require.NoError(t, err)

	claims, err := ParseClaims(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.True(t, claims.HasScope(ScopeWorkoutsWrite))
	require.True(t, claims.HasScope(ScopeWorkoutsRead))
	require.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)
}

func TestParseRejects(t *testing.T) {
	expired, err := Issue(testConfig, "user-1", nil, -time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := Issue(Config{Secret: testConfig.Secret, Issuer: "other"}, "user-1", nil, time.Hour)
	require.NoError(t, err)
	wrongSecret, err := Issue(Config{Secret: "nope", Issuer: testConfig.Issuer}, "user-1", nil, time.Hour)
	require.NoError(t, err)
	noSubject, err := Issue(testConfig, "", nil, time.Hour)
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"iss": testConfig.Issuer, "sub": "user-1"}).
		SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong issuer": wrongIssuer,
		"wrong secret": wrongSecret,
		"no subject":   noSubject,
		"no expiry":    noExpiry,
		"garbage":      "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseClaims(token, testConfig)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = ParseClaims("  ", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestScopesAsSpaceDelimitedString(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":    testConfig.Issuer,
		"sub":    "user-2",
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": "workouts:read  workouts:write",
	}).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)

	claims, err := ParseClaims(token, testConfig)
	require.NoError(t, err)
	require.Len(t, claims.Scopes, 2)
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewMiddleware(testConfig).Wrap(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/leaderboard", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Nil(t, seen)

	token, err := Issue(testConfig, "user-3", []string{ScopeWorkoutsRead}, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/v1/leaderboard", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "user-3", seen.Subject)
}
