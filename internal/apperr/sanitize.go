package apperr

import "strings"

// Redacted replaces the value of any deny-listed key in sanitized details.
const Redacted = "[REDACTED]"

// denyList matches detail keys that may carry secret material. Matching is
// case-insensitive on substrings, so e.g. "linkedin_access_token" is caught.
var denyList = []string{
	"token",
	"secret",
	"password",
	"code_verifier",
	"code_challenge",
	"api_key",
	"apikey",
	"authorization",
	"credential",
	"cookie",
	"private_key",
}

// Sanitize returns a copy of details with every deny-listed key's value
// replaced by the redaction marker. Nested maps are sanitized recursively;
// unrelated keys pass through untouched.
func Sanitize(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for key, value := range details {
		if sensitiveKey(key) {
			out[key] = Redacted
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			out[key] = Sanitize(nested)
			continue
		}
		out[key] = value
	}
	return out
}

func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, deny := range denyList {
		if strings.Contains(lower, deny) {
			return true
		}
	}
	return false
}
