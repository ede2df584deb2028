// Package expand resolves environment expressions embedded in configuration text.
package expand

import (
	"os"
	"strings"
	"unicode"
)

const envPrefix = "${env."

// Env replaces all occurrences of ${env.KEY} in value with the value of the
// environment variable KEY, or "" if unset. Malformed expressions are kept verbatim.
func Env(value string) string {
	return EnvWith(value, os.Getenv)
}

// EnvWith is Env with a custom lookup function
func EnvWith(value string, lookup func(key string) string) string {
	if !strings.Contains(value, envPrefix) {
		return value
	}
	var b strings.Builder
	i := 0
	for {
		idx := strings.Index(value[i:], envPrefix)
		if idx < 0 {
			b.WriteString(value[i:])
			break
		}
		b.WriteString(value[i : i+idx])
		startKey := i + idx + len(envPrefix)
		endKey := strings.IndexByte(value[startKey:], '}')
		if endKey < 0 {
			b.WriteString(value[i+idx:])
			break
		}
		key := value[startKey : startKey+endKey]
		if !isKey(key) {
			// keep the prefix literal, rescan what follows it
			b.WriteString(value[i+idx : startKey])
			i = startKey
			continue
		}
		b.WriteString(lookup(key))
		i = startKey + endKey + 1
	}
	return b.String()
}

func isKey(key string) bool {
	for _, r := range key {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return false
		}
	}
	return true
}
