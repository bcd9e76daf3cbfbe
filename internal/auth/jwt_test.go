package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T, ttl time.Duration) *JWTSigner {
	t.Helper()
	priv, _, err := GenerateEd25519()
	require.NoError(t, err)
	return NewJWTSigner(priv, "securekey-test", ttl)
}

func TestIssueAndParse(t *testing.T) {
	s := newTestSigner(t, time.Minute)
	tok, exp, err := s.IssueToken(Identity{UID: "u1", Email: "alice@example.com"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 2*time.Second)

	c, err := s.ParseAndValidate(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", c.Sub)
	assert.Equal(t, "alice@example.com", c.Email)
	assert.NotEmpty(t, c.TokenID)
}

func TestParseRejects(t *testing.T) {
	s := newTestSigner(t, time.Minute)
	tok, _, err := s.IssueToken(Identity{UID: "u1"})
	require.NoError(t, err)

	other := newTestSigner(t, time.Minute)
	_, err = other.ParseAndValidate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.ParseAndValidate(tok + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := newTestSigner(t, -time.Minute)
	expired.Priv, expired.Pub = s.Priv, s.Pub
	old, _, err := expired.IssueToken(Identity{UID: "u1"})
	require.NoError(t, err)
	_, err = s.ParseAndValidate(old)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRevoke(t *testing.T) {
	s := newTestSigner(t, time.Minute)
	tok, _, err := s.IssueToken(Identity{UID: "u1"})
	require.NoError(t, err)
	c, err := s.ParseAndValidate(tok)
	require.NoError(t, err)

	s.Revoke(c)
	_, err = s.ParseAndValidate(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	fresh, _, err := s.IssueToken(Identity{UID: "u1"})
	require.NoError(t, err)
	_, err = s.ParseAndValidate(fresh)
	assert.NoError(t, err)
}

func TestAuthRequired(t *testing.T) {
	s := newTestSigner(t, time.Minute)
	tok, _, err := s.IssueToken(Identity{UID: "u1", Email: "alice@example.com"})
	require.NoError(t, err)

	h := AuthRequired(s)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r)
		require.True(t, ok)
		_, _ = w.Write([]byte(id.UID))
	}))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + tok, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized},
		{"valid", "Bearer " + tok, http.StatusOK},
		{"lowercase scheme", "bearer " + tok, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "u1", rec.Body.String())
			} else {
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}
