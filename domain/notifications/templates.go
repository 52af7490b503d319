package notifications

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/aymerick/raymond"
)

//go:embed templates/*.hbs
var templateFS embed.FS

// Templates renders notification bodies from embedded Handlebars
// templates. Every template is wrapped in layout.hbs.
type Templates struct {
	mu    sync.RWMutex
	cache map[string]*raymond.Template
}

// NewTemplates creates the template renderer.
func NewTemplates() *Templates {
	return &Templates{cache: make(map[string]*raymond.Template)}
}

// RenderResult contains the rendered notification content.
type RenderResult struct {
	HTML string
	Text string
}

// Render renders a named template with the given data.
func (t *Templates) Render(name string, data map[string]any) (*RenderResult, error) {
	tpl, err := t.get(name)
	if err != nil {
		return nil, err
	}

	body, err := tpl.Exec(data)
	if err != nil {
		return nil, fmt.Errorf("render template %s: %w", name, err)
	}

	layout, err := t.get("layout")
	if err != nil {
		return nil, err
	}

	layoutData := make(map[string]any, len(data)+1)
	for k, v := range data {
		layoutData[k] = v
	}
	layoutData["body"] = raymond.SafeString(body)

	html, err := layout.Exec(layoutData)
	if err != nil {
		return nil, fmt.Errorf("render layout: %w", err)
	}

	return &RenderResult{
		HTML: html,
		Text: stripTags(body),
	}, nil
}

func (t *Templates) get(name string) (*raymond.Template, error) {
	t.mu.RLock()
	tpl, ok := t.cache[name]
	t.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	raw, err := templateFS.ReadFile("templates/" + name + ".hbs")
	if err != nil {
		return nil, fmt.Errorf("template %s not found: %w", name, err)
	}

	tpl, err = raymond.Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}

	t.mu.Lock()
	t.cache[name] = tpl
	t.mu.Unlock()
	return tpl, nil
}

// stripTags produces a crude plain-text variant for multipart emails.
func stripTags(html string) string {
	var b strings.Builder
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
