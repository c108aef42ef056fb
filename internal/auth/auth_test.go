package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-12345"

func TestVerifier_Parse(t *testing.T) {
	t.Parallel()

	v, err := NewVerifier(testSecret)
	require.NoError(t, err)

	t.Run("valid_admin", func(t *testing.T) {
		t.Parallel()

		tok, err := Issue(testSecret, Identity{Subject: "u1", Role: RoleAdmin}, time.Minute)
		require.NoError(t, err)

		id, err := v.Parse(tok)
		require.NoError(t, err)
		assert.Equal(t, Identity{Subject: "u1", Role: RoleAdmin}, id)
	})

	t.Run("missing_role_defaults_to_user", func(t *testing.T) {
		t.Parallel()

		tok, err := Issue(testSecret, Identity{Subject: "u2"}, time.Minute)
		require.NoError(t, err)

		id, err := v.Parse(tok)
		require.NoError(t, err)
		assert.Equal(t, RoleUser, id.Role)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()

		tok, err := Issue(testSecret, Identity{Subject: "u1"}, -time.Minute)
		require.NoError(t, err)

		_, err = v.Parse(tok)
		require.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("wrong_secret", func(t *testing.T) {
		t.Parallel()

		tok, err := Issue("other-secret", Identity{Subject: "u1"}, time.Minute)
		require.NoError(t, err)

		_, err = v.Parse(tok)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing_subject", func(t *testing.T) {
		t.Parallel()

		tok, err := Issue(testSecret, Identity{}, time.Minute)
		require.NoError(t, err)

		_, err = v.Parse(tok)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none_algorithm_rejected", func(t *testing.T) {
		t.Parallel()

		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = v.Parse(tok)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("empty_secret", func(t *testing.T) {
		t.Parallel()

		_, err := NewVerifier("")
		require.ErrorIs(t, err, ErrEmptySecret)
	})
}

func TestPolicy_Lookup(t *testing.T) {
	t.Parallel()

	cases := map[string]Access{
		"/healthz":           Public,
		"/metrics":           Public,
		"/payments/webhook":  Public,
		"/payments/create":   Authenticated,
		"/payments/activity": Authenticated,
		"/inventory/records": AdminOnly,
		"/somewhere/else":    Authenticated,
	}

	for path, want := range cases {
		assert.Equal(t, want, DefaultPolicy.Lookup(path), path)
	}
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	v, err := NewVerifier(testSecret)
	require.NoError(t, err)

	userTok, err := Issue(testSecret, Identity{Subject: "u1", Role: RoleUser}, time.Minute)
	require.NoError(t, err)
	adminTok, err := Issue(testSecret, Identity{Subject: "a1", Role: RoleAdmin}, time.Minute)
	require.NoError(t, err)

	var seen Identity
	h := Middleware(v, DefaultPolicy)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		path       string
		authz      string
		wantStatus int
		wantSubj   string
	}{
		{name: "public_anonymous", path: "/payments/webhook", wantStatus: http.StatusOK},
		{name: "authenticated_anonymous", path: "/payments/create", wantStatus: http.StatusUnauthorized},
		{name: "authenticated_user", path: "/payments/create", authz: "Bearer " + userTok, wantStatus: http.StatusOK, wantSubj: "u1"},
		{name: "admin_as_user", path: "/inventory/records", authz: "Bearer " + userTok, wantStatus: http.StatusForbidden},
		{name: "admin_as_admin", path: "/inventory/records", authz: "Bearer " + adminTok, wantStatus: http.StatusOK, wantSubj: "a1"},
		{name: "garbage_token", path: "/payments/create", authz: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "wrong_scheme", path: "/payments/create", authz: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = Identity{}

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.authz != "" {
				req.Header.Set("Authorization", tt.authz)
			}

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			require.Equal(t, tt.wantSubj, seen.Subject)

			if tt.wantStatus != http.StatusOK {
				require.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}
