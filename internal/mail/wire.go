// Package mail contains pure wire-format helpers for building SMTP message
// payloads: base64 helpers, RFC 2047 encoded-words for non-ASCII headers and
// multipart/alternative assembly.
//
// Everything here is deterministic string work with no I/O; the SMTP client
// layers protocol exchange on top.
package mail

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// base64Line is the maximum encoded line length used for body parts.
const base64Line = 76

// Base64 encodes s with standard base64. Used for AUTH LOGIN credential
// exchange and anywhere a command argument needs encoding.
func Base64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

// EncodedWord wraps UTF-8 text as an RFC 2047 encoded-word
// (=?UTF-8?B?...?=) for use in Subject/From headers. The result never
// contains raw CR or LF.
func EncodedWord(text string) string {
	return "=?UTF-8?B?" + base64.StdEncoding.EncodeToString([]byte(text)) + "?="
}

// isASCII reports whether s contains only printable ASCII.
func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 32 || s[i] > 126 {
			return false
		}
	}
	return true
}

// headerText returns s as-is when it is plain printable ASCII, otherwise as
// an encoded-word. Keeps headers readable in the common case.
func headerText(s string) string {
	if isASCII(s) {
		return s
	}
	return EncodedWord(s)
}

// StripTags derives a plain-text fallback from an HTML body by dropping
// <...> runs. Good enough for reminder emails; not a general HTML parser.
func StripTags(html string) string {
	var b strings.Builder
	b.Grow(len(html))
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// newBoundary generates a fresh multipart boundary per message. The token
// contains '=' and '_', neither of which appears in base64 output, so an
// encoded part can never collide with a delimiter line.
func newBoundary() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("=_zlot_%d_%x", time.Now().UnixNano(), buf)
}

// wrapBase64 encodes data and folds the result into CRLF-separated lines.
func wrapBase64(data string) string {
	enc := base64.StdEncoding.EncodeToString([]byte(data))
	var b strings.Builder
	for len(enc) > base64Line {
		b.WriteString(enc[:base64Line])
		b.WriteString("\r\n")
		enc = enc[base64Line:]
	}
	b.WriteString(enc)
	b.WriteString("\r\n")
	return b.String()
}

// BuildMessage assembles a complete multipart/alternative message, including
// the trailing SMTP end-of-data marker (a lone "." line). When textBody is
// empty a plain-text fallback is derived by stripping tags from htmlBody.
func BuildMessage(from, fromName, to, subject, htmlBody, textBody string) string {
	if textBody == "" {
		textBody = StripTags(htmlBody)
	}
	boundary := newBoundary()

	var b strings.Builder
	if fromName != "" {
		fmt.Fprintf(&b, "From: %s <%s>\r\n", headerText(fromName), from)
	} else {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", headerText(subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n")
	b.WriteString("\r\n")
	b.WriteString(wrapBase64(textBody))

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n")
	b.WriteString("\r\n")
	b.WriteString(wrapBase64(htmlBody))

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	b.WriteString(".\r\n")

	return b.String()
}
