package audit

import (
	"encoding/json"
	"regexp"
	"strings"
)

// RedactedPlaceholder replaces secret-shaped and bulk values in exported
// artifacts.
const RedactedPlaceholder = "[REDACTED]"

// secretKeyPattern matches field names whose values must never leave the
// system, regardless of content.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|api[_-]?key|authorization|credential|private[_-]?key)`)

// secretValuePattern catches values that look like credentials even under
// innocent field names.
var secretValuePattern = regexp.MustCompile(`^(sk-[A-Za-z0-9]{8,}|xox[a-z]-[A-Za-z0-9-]{8,}|ghp_[A-Za-z0-9]{20,}|eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{5,})$`)

// bulkBodyKeys are stripped entirely: embedded file bodies belong in the
// workspace, not in audit bundles.
var bulkBodyKeys = map[string]bool{
	"file_body": true,
	"body_b64":  true,
	"content":   false, // kept: too generic to strip safely
}

// RedactJSON redacts a JSON document in place and returns the re-encoded
// bytes. Redaction happens before manifest computation, so bundle hashes
// always reflect the redacted bytes.
func RedactJSON(raw []byte) ([]byte, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		// Not JSON. Leave untouched; redaction only applies to structured
		// artifacts.
		return raw, nil
	}
	redacted := redactValue(doc, "")
	return json.MarshalIndent(redacted, "", "  ")
}

func redactValue(v interface{}, key string) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if bulkBodyKeys[strings.ToLower(k)] {
				out[k] = RedactedPlaceholder
				continue
			}
			if secretKeyPattern.MatchString(k) {
				out[k] = RedactedPlaceholder
				continue
			}
			out[k] = redactValue(val, k)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = redactValue(val, key)
		}
		return out
	case string:
		if secretValuePattern.MatchString(t) {
			return RedactedPlaceholder
		}
		return t
	default:
		return v
	}
}
