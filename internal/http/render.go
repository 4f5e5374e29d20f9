package http

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/kjstillabower/forecast-dashboard/internal/forecast"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page template names. Each is parsed with the layout and the panel partials.
const (
	pageDashboard = "dashboard"
	pageAbout     = "about"
	pageContact   = "contact"
	pagePrivacy   = "privacy"
	pageForecast  = "forecast"
	pageNotFound  = "notfound"
)

var pageNames = []string{pageDashboard, pageAbout, pageContact, pagePrivacy, pageForecast, pageNotFound}

var templateFuncs = template.FuncMap{
	"add": func(a, b float64) float64 { return a + b },
	"sub": func(a, b float64) float64 { return a - b },
	"num": forecast.FormatNumber,
	"iconGlyph": func(i forecast.Icon) string {
		switch i {
		case forecast.IconSun:
			return "☀"
		case forecast.IconCloud:
			return "☁"
		default:
			return "🌧"
		}
	},
}

// Renderer executes the embedded page and fragment templates.
type Renderer struct {
	pages    map[string]*template.Template
	fragment *template.Template
}

// NewRenderer parses every embedded template. Fails on the first parse error.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS,
			"templates/layout.html", "templates/panel.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		r.pages[name] = t
	}
	frag, err := template.New("fragment").Funcs(templateFuncs).ParseFS(templateFS, "templates/panel.html")
	if err != nil {
		return nil, fmt.Errorf("parse panel: %w", err)
	}
	r.fragment = frag
	return r, nil
}

// Page renders a full page through the layout.
func (r *Renderer) Page(w http.ResponseWriter, status int, name string, data any) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	return write(w, status, t, "layout", data)
}

// Panel renders one forecast panel as an HTML fragment.
func (r *Renderer) Panel(w http.ResponseWriter, status int, p forecast.Panel) error {
	return write(w, status, r.fragment, "panel", p)
}

// write buffers the output; nothing is sent when execution fails.
func write(w http.ResponseWriter, status int, t *template.Template, name string, data any) error {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("execute %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
