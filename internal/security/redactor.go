// Package security keeps credentials out of log output. A Redactor masks
// known credential shapes and literal values taken from the loaded
// configuration; RedactingHandler applies it to every slog record.
package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder is the replacement string for redacted secrets.
const RedactPlaceholder = "***REDACTED***"

// minLiteralLen guards against masking short, common values such as "on".
const minLiteralLen = 6

// secretKeyPattern matches map keys that likely hold secrets.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|pass|key|credential)`)

// Redactor replaces secret values in strings with RedactPlaceholder.
// All methods are safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor creates a Redactor pre-loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern adds a compiled regex pattern to the redactor.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral adds a literal secret value that should be redacted on sight.
// Values shorter than six bytes are ignored.
func (r *Redactor) AddLiteral(secret string) {
	if len(secret) < minLiteralLen {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// SetLiterals replaces the literal set, typically after a config reload.
func (r *Redactor) SetLiterals(secrets []string) {
	kept := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if len(s) >= minLiteralLen {
			kept = append(kept, s)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = kept
}

// Redact replaces all known secret patterns and literal values in s.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns := r.patterns
	literals := r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		if strings.Contains(s, lit) {
			s = strings.ReplaceAll(s, lit, RedactPlaceholder)
		}
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, "${1}"+RedactPlaceholder)
	}
	return s
}

// CollectSecrets walks a decoded YAML or JSON document and returns every
// non-empty string stored under a secret-looking key.
func CollectSecrets(v any) []string {
	var out []string
	var walk func(key string, v any)
	walk = func(key string, v any) {
		switch val := v.(type) {
		case map[string]any:
			for k, sub := range val {
				walk(k, sub)
			}
		case []any:
			for _, sub := range val {
				walk(key, sub)
			}
		case string:
			if val != "" && secretKeyPattern.MatchString(key) {
				out = append(out, val)
			}
		}
	}
	walk("", v)
	return out
}

// DefaultPatterns returns patterns for credentials that travel through the
// HTTP surface. The first group of each pattern is kept verbatim.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Authorization header values.
		regexp.MustCompile(`((?i)bearer\s+)[A-Za-z0-9\-._~+/]{8,}=*`),
		regexp.MustCompile(`((?i)basic\s+)[A-Za-z0-9+/]{8,}=*`),
		// Webhook signatures.
		regexp.MustCompile(`(sha256=)[0-9a-fA-F]{64}`),
	}
}
