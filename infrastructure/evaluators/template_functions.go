package evaluators

import (
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/ahrav/go-qualitygate/internal/domain"
)

// PromptFuncMap returns the functions available to judge prompt templates.
//
//	{{truncate .Response 2000}}
//	{{range .Messages}}{{role .}}: {{.Content}}{{end}}
func PromptFuncMap() template.FuncMap {
	return template.FuncMap{
		// truncate limits s to n runes, appending "..." when it cuts.
		"truncate": func(s string, n int) string {
			if n <= 0 {
				return ""
			}
			if utf8.RuneCountInString(s) <= n {
				return s
			}
			runes := []rune(s)
			if n > 3 {
				return string(runes[:n-3]) + "..."
			}
			return string(runes[:n])
		},
		"trim":     strings.TrimSpace,
		"lower":    strings.ToLower,
		"upper":    strings.ToUpper,
		"contains": strings.Contains,
		"role": func(m domain.Message) string {
			return strings.ToUpper(string(m.Role))
		},
		"add": func(a, b int) int { return a + b },
	}
}

// transcript renders messages one per block as "ROLE: content".
func transcript(messages []domain.Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(strings.ToUpper(string(m.Role)))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}
