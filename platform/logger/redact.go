package logger

import (
	"log/slog"
	"strings"
)

var sensitiveKeys = []string{"token", "password", "secret", "api_key", "apikey", "authorization", "bearer"}

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		return a
	}
	key := strings.ToLower(a.Key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return slog.String(a.Key, "***")
		}
	}
	return a
}

// RedactEmail masks the local part of an address: "jo***@example.com".
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return RedactPhone(email)
	}
	local := email[:at]
	if len(local) <= 2 {
		return "***" + email[at:]
	}
	return local[:2] + "***" + email[at:]
}

// RedactPhone keeps only the last four digits.
func RedactPhone(phone string) string {
	if len(phone) <= 4 {
		return "***"
	}
	return "***" + phone[len(phone)-4:]
}
