// Package middleware содержит HTTP middleware сервиса сопровождения сделок.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmeshcher/evmarket-lifecycle/internal/model"
)

type contextKey string

const sessionKey contextKey = "session"

const (
	authCookieName = "access_token"
	authCookieTTL  = 24 * time.Hour
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrSecretMissing = errors.New("token secret is not configured")
)

// Claims содержит утверждения токена доступа, выданного бэкендом маркетплейса.
type Claims struct {
	UserID   int64  `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware проверяет токен доступа и кладёт сессию пользователя в контекст запроса.
// Токен берётся из заголовка Authorization или из cookie, которую браузер приносит при возврате с оплаты.
type AuthMiddleware struct {
	secretKey []byte
	parser    *jwt.Parser
}

// NewAuthMiddleware создаёт middleware с секретом подписи HS256.
// Без секрета ни один токен не принимается.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{
		secretKey: []byte(secret),
		parser:    jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()),
	}
}

// Middleware отклоняет запросы без действительного токена со статусом 401.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := tokenFromRequest(r)
		if raw == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		sess, err := a.ParseToken(raw)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

// ParseToken проверяет токен и собирает из него сессию.
func (a *AuthMiddleware) ParseToken(raw string) (model.Session, error) {
	claims := &Claims{}

	if len(a.secretKey) == 0 {
		return model.Session{}, errors.Join(ErrInvalidToken, ErrSecretMissing)
	}

	token, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secretKey, nil
	})
	if err == nil && !token.Valid {
		err = ErrInvalidToken
	}
	if err != nil {
		return model.Session{}, errors.Join(ErrInvalidToken, err)
	}

	sess := model.Session{UserID: claims.UserID, Username: claims.Username, Token: raw}
	if sess.UserID == 0 && claims.Subject != "" {
		if id, err := strconv.ParseInt(claims.Subject, 10, 64); err == nil {
			sess.UserID = id
		}
	}
	if !sess.Authenticated() {
		return model.Session{}, ErrInvalidToken
	}
	return sess, nil
}

// IssueToken подписывает токен для пользователя. Используется в тестах и локальной разработке.
func (a *AuthMiddleware) IssueToken(userID int64, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secretKey)
}

// SetAuthCookie сохраняет токен в cookie, чтобы переходы с платёжной страницы были аутентифицированы.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, token string) {
	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(authCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(authCookieName); err == nil {
		return c.Value
	}
	return ""
}

// SessionFromContext извлекает сессию пользователя из контекста запроса.
func SessionFromContext(ctx context.Context) (model.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(model.Session)
	return sess, ok
}

// WithSession кладёт сессию в контекст.
func WithSession(ctx context.Context, sess model.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}
