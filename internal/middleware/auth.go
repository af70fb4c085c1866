// Package middleware содержит HTTP middleware сервиса numbermarket.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

type contextKey string

const userIDKey contextKey = "userID"

const (
	headerUserID    = "X-User-Id"
	headerSignature = "X-Bridge-Signature"
)

// AuthMiddleware проверяет подпись запросов от моста сообщений. Мост
// подписывает идентификатор пользователя общим секретом; подделать
// чужой userID без секрета нельзя.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет заголовки авторизации и добавляет идентификатор пользователя в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(headerUserID)
		signature := r.Header.Get(headerSignature)
		if userID == "" || signature == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		if !hmac.Equal([]byte(signature), []byte(a.Sign(userID))) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Sign возвращает подпись идентификатора пользователя. Используется
// мостом при формировании запроса.
func (a *AuthMiddleware) Sign(userID string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

// SetAuthHeaders проставляет заголовки авторизации на исходящем запросе от имени пользователя.
func (a *AuthMiddleware) SetAuthHeaders(r *http.Request, userID string) {
	r.Header.Set(headerUserID, userID)
	r.Header.Set(headerSignature, a.Sign(userID))
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}
