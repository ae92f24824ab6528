// Package template renders notification subjects and bodies with
// text/template, with the reminder or trigger payload as data.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"
)

func newTemplate() *template.Template {
	return template.
		New("notification").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"date": func(t time.Time) string {
				return t.Format("2006-01-02")
			},
			"money": func(amount float64) string {
				return fmt.Sprintf("%.2f", amount)
			},
		})
}

// Render parses and executes a template string against data.
func Render(templateStr string, data any) (string, error) {
	tmpl, err := newTemplate().Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %q: %w", templateStr, err)
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %q: %w", templateStr, err)
	}

	return buf.String(), nil
}

// Parse validates a template string without executing it.
func Parse(templateStr string) (*template.Template, error) {
	return newTemplate().Parse(templateStr)
}
