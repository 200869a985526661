// Package render substitutes named {{placeholder}} tokens in email template
// text. It is deliberately not a templating engine: no conditionals, no
// escaping, no I/O - just deterministic single-pass string substitution, so
// template authors cannot break sends and substituted values are never
// re-interpreted.
package render

import "strings"

// Resolve replaces every {{key}} token in text with vars[key], matching keys
// case-insensitively. Tokens whose key has no entry in vars are left intact.
// Substitution is single-pass: a value containing "{{" is never re-scanned.
func Resolve(text string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(text, "{{") {
		return text
	}

	lookup := make(map[string]string, len(vars))
	for k, v := range vars {
		lookup[strings.ToLower(k)] = v
	}

	var b strings.Builder
	b.Grow(len(text))

	for {
		open := strings.Index(text, "{{")
		if open < 0 {
			b.WriteString(text)
			return b.String()
		}
		end := strings.Index(text[open+2:], "}}")
		if end < 0 {
			b.WriteString(text)
			return b.String()
		}

		key := text[open+2 : open+2+end]
		value, ok := lookup[strings.ToLower(key)]
		if !ok {
			// Unknown placeholder stays visible rather than silently
			// blanking part of the message. Advance past the opening
			// braces only, so an overlapping token can still match.
			b.WriteString(text[:open+2])
			text = text[open+2:]
			continue
		}

		b.WriteString(text[:open])
		b.WriteString(value)
		text = text[open+2+end+2:]
	}
}

// Pair resolves a subject/body template pair with one variable set.
func Pair(subject, body string, vars map[string]string) (string, string) {
	return Resolve(subject, vars), Resolve(body, vars)
}
