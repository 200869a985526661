package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		text string
		vars map[string]string
		want string
	}{
		{
			name: "simple substitution",
			text: "Hello {{name}}",
			vars: map[string]string{"name": "Ala"},
			want: "Hello Ala",
		},
		{
			name: "missing key left intact",
			text: "Hello {{missing}}",
			vars: map[string]string{},
			want: "Hello {{missing}}",
		},
		{
			name: "case insensitive key match",
			text: "Cześć {{First_Name}}, widzimy się o {{EVENT_TIME}}",
			vars: map[string]string{"first_name": "Ola", "event_time": "18:00"},
			want: "Cześć Ola, widzimy się o 18:00",
		},
		{
			name: "repeated token",
			text: "{{x}} and {{x}} again",
			vars: map[string]string{"x": "42"},
			want: "42 and 42 again",
		},
		{
			name: "value containing braces is not rescanned",
			text: "a {{k}} b",
			vars: map[string]string{"k": "{{inner}}", "inner": "nope"},
			want: "a {{inner}} b",
		},
		{
			name: "unknown next to known",
			text: "{{who}} invites you to {{event_title}}",
			vars: map[string]string{"event_title": "Zlot 2025"},
			want: "{{who}} invites you to Zlot 2025",
		},
		{
			name: "unterminated token untouched",
			text: "broken {{token",
			vars: map[string]string{"token": "x"},
			want: "broken {{token",
		},
		{
			name: "no variables no tokens",
			text: "static text",
			vars: nil,
			want: "static text",
		},
		{
			name: "empty value blanks the token",
			text: "link: {{event_link}}",
			vars: map[string]string{"event_link": ""},
			want: "link: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.text, tt.vars))
		})
	}
}

func TestPair(t *testing.T) {
	subject, body := Pair(
		"Przypomnienie: {{event_title}}",
		"<p>Cześć {{first_name}}!</p>",
		map[string]string{"event_title": "Warsztaty Go", "first_name": "Ala"},
	)

	assert.Equal(t, "Przypomnienie: Warsztaty Go", subject)
	assert.Equal(t, "<p>Cześć Ala!</p>", body)
}
