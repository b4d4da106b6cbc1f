package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"naszgpt-backend/internal/logger"
)

type contextKey string

const SessionIDKey contextKey = "session_id"

const SessionCookieName = "naszgpt_session"

// SessionManager issues a signed session cookie to every browser and puts
// the session id on the request context.
type SessionManager struct {
	Secret []byte
	TTL    time.Duration
	Secure bool
	now    func() time.Time
}

func NewSessionManager(secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		Secret: []byte(secret),
		TTL:    ttl,
		Secure: secure,
		now:    time.Now,
	}
}

// GenerateToken signs a session token for sessionID.
func (m *SessionManager) GenerateToken(sessionID string) (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.TTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.Secret)
}

// ParseToken verifies tokenStr and returns its claims.
func (m *SessionManager) ParseToken(tokenStr string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.Secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, errors.New("invalid session id in token")
	}
	return claims, nil
}

// Middleware resolves the session from the cookie, starting a new one when
// the cookie is missing, invalid or expired. Tokens past half their lifetime
// are renewed.
func (m *SessionManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sessionID string
		renew := false

		if c, err := r.Cookie(SessionCookieName); err == nil {
			if claims, err := m.ParseToken(c.Value); err == nil {
				sessionID = claims.Subject
				if claims.ExpiresAt != nil && claims.ExpiresAt.Sub(m.now()) < m.TTL/2 {
					renew = true
				}
			}
		}
		if sessionID == "" {
			sessionID = uuid.NewString()
			renew = true
		}

		if renew {
			if err := m.setCookie(w, sessionID); err != nil {
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not start session", r)
				return
			}
		}

		ctx := context.WithValue(r.Context(), SessionIDKey, sessionID)
		ctx = logger.WithValue(ctx, logger.SessionIDKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *SessionManager) setCookie(w http.ResponseWriter, sessionID string) error {
	token, err := m.GenerateToken(sessionID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearCookie removes the session cookie from the browser.
func (m *SessionManager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// GetSessionID extracts the session id from request context
func GetSessionID(ctx context.Context) string {
	id, _ := ctx.Value(SessionIDKey).(string)
	return id
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
		},
	})
}
