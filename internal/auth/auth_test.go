package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/LiveTrack/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestIdentify_Authenticated(t *testing.T) {
	a := New(secret)

	tok := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"id":    "u-1",
		"roles": []string{"staff", "admin"},
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	id, err := a.Identify(tok)
	require.NoError(t, err)
	require.Equal(t, models.Authenticated{UserID: "u-1", Roles: []string{"staff", "admin"}}, id)

	tok = sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"user_id": "u-2", "role": "driver"})
	id, err = a.Identify(tok)
	require.NoError(t, err)
	require.Equal(t, models.Authenticated{UserID: "u-2", Roles: []string{"driver"}}, id)

	tok = sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"userId": "u-3"})
	id, err = a.Identify(tok)
	require.NoError(t, err)
	require.Equal(t, "u-3", models.UserIDOf(id))
}

func TestIdentify_Rejects(t *testing.T) {
	a := New(secret)

	cases := map[string]string{
		"empty":      "",
		"garbage":    "not.a.jwt",
		"wrong key":  sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"id": "u"}),
		"expired":    sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"id": "u", "exp": time.Now().Add(-time.Hour).Unix()}),
		"no user id": sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"role": "admin"}),
		"alg none":   sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"id": "u"}),
	}
	for name, tok := range cases {
		id, err := a.Identify(tok)
		require.Error(t, err, name)
		require.Equal(t, models.Anonymous{}, id, name)
	}

	_, err := New("").Identify(sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"id": "u"}))
	require.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	a := New(secret)
	var got models.Identity
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	tok := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"id": "u-1", "role": "customer"})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, models.Authenticated{UserID: "u-1", Roles: []string{"customer"}}, got)

	req = httptest.NewRequest(http.MethodGet, "/ws?token="+tok, nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "u-1", models.UserIDOf(got))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer broken")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, models.Anonymous{}, got)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, models.Anonymous{}, got)
}

func TestFromContext_Default(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	require.Equal(t, models.Anonymous{}, FromContext(req.Context()))
}
