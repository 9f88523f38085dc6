package middleware

import (
	"net/http"

	"hedgebot/pkg/crypto"
)

// BasicAuth защищает управляющий API оператора HTTP Basic Auth'ом.
// Пароль сверяется с bcrypt-хешем из конфигурации, имя пользователя
// не проверяется - оператор один. Пустой хеш отключает проверку
// (локальное развертывание без auth).
func BasicAuth(passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if passwordHash == "" {
				next.ServeHTTP(w, r)
				return
			}

			_, pass, ok := r.BasicAuth()
			if !ok || !crypto.CheckPassword(pass, passwordHash) {
				w.Header().Set("WWW-Authenticate", `Basic realm="hedgebot"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
