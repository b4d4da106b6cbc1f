package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureSession(t *testing.T, m *SessionManager, req *http.Request) (string, *httptest.ResponseRecorder) {
	t.Helper()
	var got string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetSessionID(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return got, rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	return nil
}

func TestSessionMiddleware_IssuesNewSession(t *testing.T) {
	m := NewSessionManager("secret", time.Hour, false)

	id, rec := captureSession(t, m, httptest.NewRequest(http.MethodGet, "/", nil))

	_, err := uuid.Parse(id)
	require.NoError(t, err)
	c := sessionCookie(rec)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)

	claims, err := m.ParseToken(c.Value)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Subject)
}

func TestSessionMiddleware_ReusesValidCookie(t *testing.T) {
	m := NewSessionManager("secret", time.Hour, false)
	sid := uuid.NewString()
	token, err := m.GenerateToken(sid)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	id, rec := captureSession(t, m, req)

	assert.Equal(t, sid, id)
	assert.Nil(t, sessionCookie(rec), "fresh token should not be reissued")
}

func TestSessionMiddleware_RenewsAgingCookie(t *testing.T) {
	m := NewSessionManager("secret", time.Hour, false)
	issued := time.Now().Add(-40 * time.Minute)
	m.now = func() time.Time { return issued }
	sid := uuid.NewString()
	token, err := m.GenerateToken(sid)
	require.NoError(t, err)
	m.now = time.Now

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	id, rec := captureSession(t, m, req)

	assert.Equal(t, sid, id)
	assert.NotNil(t, sessionCookie(rec))
}

func TestSessionMiddleware_RejectsForeignSignature(t *testing.T) {
	other := NewSessionManager("other", time.Hour, false)
	token, err := other.GenerateToken(uuid.NewString())
	require.NoError(t, err)

	m := NewSessionManager("secret", time.Hour, false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	id, rec := captureSession(t, m, req)

	claims, err := other.ParseToken(token)
	require.NoError(t, err)
	assert.NotEqual(t, claims.Subject, id)
	assert.NotNil(t, sessionCookie(rec))
}

func TestSessionMiddleware_ExpiredCookieStartsOver(t *testing.T) {
	m := NewSessionManager("secret", time.Hour, false)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	sid := uuid.NewString()
	token, err := m.GenerateToken(sid)
	require.NoError(t, err)
	m.now = time.Now

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	id, _ := captureSession(t, m, req)

	assert.NotEqual(t, sid, id)
}

func TestClearCookie(t *testing.T) {
	m := NewSessionManager("secret", time.Hour, true)
	rec := httptest.NewRecorder()
	m.ClearCookie(rec)

	c := sessionCookie(rec)
	require.NotNil(t, c)
	assert.Equal(t, "", c.Value)
	assert.Less(t, c.MaxAge, 0)
	assert.True(t, c.Secure)
}
