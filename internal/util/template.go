package util

import (
	"bytes"
	"strings"
	"text/template"
)

// RenderTemplate renders persona prompt templates with Go's text/template.
// text/template (not html/template) on purpose: prompts are not markup and
// must not be entity-escaped. Lives in internal to avoid committing to
// public API stability prematurely.
func RenderTemplate(text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	tmpl, err := template.New("prompt").Funcs(template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}
