package dispatch

import (
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// brokenKeyRx matches a quoted key that kept a stray opening brace from the
// client-side encoding bug, e.g. `"{nombre"` inside `{"{nombre":"valor"}`.
var brokenKeyRx = regexp.MustCompile(`"\{([^"{}]+)"`)

// SanitizeJSON repairs the malformed JSON strings some clients deliver in
// multipart form fields (stray braces around keys, dropped closing braces).
// It always returns parseable JSON text and never fails: if the payload is
// beyond repair it logs a warning and falls back to "{}".
func SanitizeJSON(raw string, log *zap.Logger) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "{}"
	}

	// The client bug sometimes wraps the whole object in an extra pair of
	// quotes: "{...}" instead of {...}.
	if strings.HasPrefix(s, `"{`) && strings.HasSuffix(s, `}"`) {
		s = s[1 : len(s)-1]
	}

	s = brokenKeyRx.ReplaceAllString(s, `"$1"`)

	if !strings.HasSuffix(s, "}") {
		s += "}"
	}

	if !json.Valid([]byte(s)) {
		if log != nil {
			log.Warn("unrepairable json payload, defaulting to empty object",
				zap.String("raw", raw))
		}
		return "{}"
	}
	return s
}

// ParseStringMap sanitizes raw and decodes it into a string map. Non-string
// values are dropped rather than failing the whole payload.
func ParseStringMap(raw string, log *zap.Logger) map[string]string {
	var loose map[string]any
	if err := json.Unmarshal([]byte(SanitizeJSON(raw, log)), &loose); err != nil {
		return map[string]string{}
	}

	out := make(map[string]string, len(loose))
	for k, v := range loose {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
