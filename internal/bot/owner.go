package bot

import (
	"strings"

	"github.com/pavelanni/classbot/internal/delivery"
)

// NormalizeOwner turns a sender address into the key used for sessions and
// member lookups. Phone numbers keep only a leading "+" and digits, so
// "whatsapp:+1 (555) 010-2000" and "+15550102000" are the same owner.
// Telegram owners ("tg:<chat id>") are kept as they are.
func NormalizeOwner(id string) string {
	s := strings.TrimSpace(id)
	if strings.HasPrefix(s, delivery.TelegramPrefix) {
		return s
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[i+1:]
	}

	var sb strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '+' && i == 0:
			sb.WriteRune(r)
		}
	}
	digits := sb.String()
	if strings.Trim(digits, "+") == "" {
		return strings.ToLower(strings.TrimSpace(id))
	}
	return digits
}
