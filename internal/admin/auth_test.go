package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authProbe(secret string) (http.Handler, *string) {
	var subject string
	return BearerAuth(secret, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = SubjectFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})), &subject
}

func requestWithAuth(header string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/stats", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req
}

func TestBearerAuth_ValidToken(t *testing.T) {
	h, subject := authProbe("s3cret")
	token, err := IssueToken("s3cret", "ops@astral", time.Minute)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestWithAuth("Bearer "+token))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops@astral", *subject)
}

func TestBearerAuth_Rejects(t *testing.T) {
	expired, err := IssueToken("s3cret", "ops", -time.Minute)
	require.NoError(t, err)
	wrongKey, err := IssueToken("other", "ops", time.Minute)
	require.NoError(t, err)
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "ops"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, header := range map[string]string{
		"missing":      "",
		"wrong scheme": "Basic abc",
		"empty token":  "Bearer ",
		"garbage":      "Bearer not.a.token",
		"expired":      "Bearer " + expired,
		"wrong key":    "Bearer " + wrongKey,
		"no expiry":    "Bearer " + noExp,
		"wrong alg":    "Bearer " + hs512,
	} {
		t.Run(name, func(t *testing.T) {
			h, _ := authProbe("s3cret")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, requestWithAuth(header))
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestBearerAuth_DisabledWithoutSecret(t *testing.T) {
	h, subject := authProbe("")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, requestWithAuth(""))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, *subject)
}
