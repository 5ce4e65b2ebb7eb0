package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// requireAdminToken checks the "Authorization: Bearer <token>" header.
func (h *Handler) requireAdminToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || !tokensEqual(token, h.config.AdminToken) {
			slog.Warn("admin request rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireTelegramSecret checks the secret token Telegram echoes back on
// every webhook call. It is a no-op when no secret is configured.
func (h *Handler) requireTelegramSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.config.TelegramSecret != "" && !tokensEqual(r.Header.Get(telegramSecretHeader), h.config.TelegramSecret) {
			slog.Warn("telegram webhook secret mismatch", "remote", r.RemoteAddr)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tokensEqual(got, want string) bool {
	return len(got) == len(want) && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
