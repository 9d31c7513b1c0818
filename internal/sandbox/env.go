package sandbox

import "strings"

// sensitiveMarkers flags environment variable names that must never be
// visible to hook code. Matching is a case-insensitive substring test on
// the key, so CLAUDE_API_KEY, my_secret and GH_TOKEN are all filtered.
var sensitiveMarkers = []string{
	"API_KEY",
	"APIKEY",
	"SECRET",
	"PASSWORD",
	"PRIVATE_KEY",
	"TOKEN",
	"CREDENTIAL",
	"ACCESS_KEY",
}

// FilterEnv converts an os.Environ-style list into a map with every
// sensitive-looking key removed.
func FilterEnv(environ []string) map[string]string {
	filtered := make(map[string]string, len(environ))
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || isSensitiveKey(key) {
			continue
		}
		filtered[key] = value
	}
	return filtered
}

func isSensitiveKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}
