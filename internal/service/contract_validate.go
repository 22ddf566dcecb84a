package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

// sqlTokens are substrings rejected in free-text contract fields. The real
// defense is parameterized queries; this mirrors the ingress policy so hostile
// payloads are refused before they are stored and re-rendered elsewhere.
var sqlTokens = []string{"DROP", "DELETE", "UNION", "--", "/*", "*/"}

// rejectSQLTokens validates a set of named free-text fields.
func rejectSQLTokens(fields map[string]string) error {
	bad := map[string]string{}
	for name, value := range fields {
		upper := strings.ToUpper(value)
		for _, tok := range sqlTokens {
			if strings.Contains(upper, tok) {
				bad[name] = fmt.Sprintf("contains forbidden token %q", tok)
				break
			}
		}
	}
	if len(bad) > 0 {
		return &ValidationError{Message: "input contains forbidden SQL tokens", Fields: bad}
	}
	return nil
}

// normalizeJSONBag coerces a JSON bag input into valid jsonb:
//   - absent or empty string  -> {}
//   - JSON object or array    -> passed through unchanged
//   - bare string / plain text -> {"<textKey>": <text>, "type": "text"}
//
// Shape beyond parseability is never validated; bags are opaque to the core.
func normalizeJSONBag(raw json.RawMessage, textKey string) (datatypes.JSON, error) {
	if len(raw) == 0 {
		return datatypes.JSON([]byte(`{}`)), nil
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		// Not valid JSON at all: treat the raw bytes as plain text.
		return wrapText(string(raw), textKey)
	}

	switch val := v.(type) {
	case nil:
		return datatypes.JSON([]byte(`{}`)), nil
	case string:
		if strings.TrimSpace(val) == "" {
			return datatypes.JSON([]byte(`{}`)), nil
		}
		return wrapText(val, textKey)
	case map[string]interface{}, []interface{}:
		return datatypes.JSON(raw), nil
	default:
		return nil, NewValidationError(fmt.Sprintf("field %q must be an object, array or text", textKey))
	}
}

func wrapText(text, textKey string) (datatypes.JSON, error) {
	out, err := json.Marshal(map[string]string{textKey: text, "type": "text"})
	if err != nil {
		return nil, fmt.Errorf("failed to wrap text field: %w", err)
	}
	return datatypes.JSON(out), nil
}

// normalizeBool accepts the stringly-typed booleans some clients still send.
func normalizeBool(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(val, "true") || val == "1"
	default:
		return false
	}
}
