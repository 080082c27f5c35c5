// Package normalize holds the small string canonicalizers applied to user
// input and stored values before they are compared or persisted.
package normalize

import (
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"
)

// Email lowercases and trims an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims a display name. Case is preserved.
func Name(s string) string {
	return strings.TrimSpace(s)
}

// Status lowercases and trims a status value.
func Status(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Role lowercases and trims a role value.
func Role(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Reason trims a free-text reason (rejection, removal).
func Reason(s string) string {
	return strings.TrimSpace(s)
}

// LocalPartTitle turns the local part of an email into a readable name:
// "jane.doe_smith@x.com" becomes "Jane Doe Smith". It returns "" when the
// address has no usable local part.
func LocalPartTitle(email string) string {
	local := Email(email)
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	words := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+' || unicode.IsSpace(r)
	})
	for i, w := range words {
		rs := []rune(w)
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}

var legacySeen sync.Map

// LegacyStatus records that a stored status value was not a recognized
// spelling and was treated as pending. Each (kind, value) pair is logged once
// per process. It reports whether this call was the first sighting.
func LegacyStatus(log *zap.Logger, kind, raw string) bool {
	_, seen := legacySeen.LoadOrStore(kind+"\x00"+raw, struct{}{})
	if seen {
		return false
	}
	if log != nil {
		log.Warn("unrecognized legacy status treated as pending",
			zap.String("kind", kind),
			zap.String("status", raw))
	}
	return true
}
