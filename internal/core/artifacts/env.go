package artifacts

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// =============================================================================
// Passthrough Environment
// =============================================================================

// extraEnv converts passthrough keys of a config section into
// STORE_{SECTION}_{KEY} variables. camelCase keys are split on case changes
// and anything outside [A-Za-z0-9] becomes an underscore.
//
// Example:
//
//	extraEnv("identity", map[string]any{"whatsAppNumber": "+55"})
//	// map[STORE_IDENTITY_WHATS_APP_NUMBER:+55]
func extraEnv(section string, extra map[string]any, into map[string]string) error {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	origin := make(map[string]string, len(keys))
	for _, k := range keys {
		name := "STORE_" + envSegment(section) + "_" + envSegment(k)
		if prev, dup := origin[name]; dup {
			return templateError(section+"."+k,
				fmt.Sprintf("maps to %s, already used by %s.%s", name, section, prev))
		}
		if _, taken := into[name]; taken {
			return templateError(section+"."+k, fmt.Sprintf("maps to reserved variable %s", name))
		}
		origin[name] = k
		into[name] = envValue(extra[k])
	}
	return nil
}

func envSegment(s string) string {
	var b strings.Builder
	var prev rune
	for i, r := range s {
		switch {
		case r < unicode.MaxASCII && unicode.IsUpper(r) && i > 0 && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			b.WriteByte('_')
			b.WriteRune(unicode.ToUpper(r))
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(unicode.ToUpper(r))
		default:
			b.WriteByte('_')
		}
		prev = r
	}
	return b.String()
}

func envValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

// composeEscape escapes $ so compose passes values through without interpolation.
func composeEscape(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}
