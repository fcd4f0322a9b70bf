package view

import (
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/stockbill/internal/shared"
	"github.com/odyssey-erp/stockbill/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Dataset     string
	Data        any
}

// NewTemplateData fills the per-request fields from the session: a CSRF token
// and the next pending flash message.
func NewTemplateData(r *http.Request, csrf *shared.CSRFManager, title, dataset string, data any) TemplateData {
	td := TemplateData{
		Title:       title,
		CurrentPath: r.URL.Path,
		Dataset:     dataset,
		Data:        data,
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if csrf != nil {
			td.CSRFToken, _ = csrf.EnsureToken(sess)
		}
		td.Flash = sess.PopFlash()
	}
	return td
}

var printer = message.NewPrinter(language.English)

// Money formats an amount with thousands separators and two decimals.
func Money(v float64) string {
	return printer.Sprintf("%.2f", v)
}

// FormatDate renders a calendar date, or an empty string for nil/zero values.
func FormatDate(v any) string {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02")
	case *time.Time:
		if t == nil || t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02")
	default:
		return ""
	}
}

// Query builds an encoded query string from alternating key/value pairs.
func Query(pairs ...any) (template.URL, error) {
	if len(pairs)%2 != 0 {
		return "", fmt.Errorf("view: query needs key/value pairs")
	}
	values := url.Values{}
	for i := 0; i < len(pairs); i += 2 {
		key := fmt.Sprint(pairs[i])
		val := fmt.Sprint(pairs[i+1])
		if val == "" {
			continue
		}
		values.Set(key, val)
	}
	return template.URL(values.Encode()), nil
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"money":      Money,
		"formatDate": FormatDate,
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("2006-01-02 15:04:05")
		},
		"query": Query,
		"add":   func(a, b int) int { return a + b },
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}

// RenderStatus is Render with an explicit status code.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return e.templates.ExecuteTemplate(w, name, data)
}

// Execute writes a named template to w without touching response headers.
func (e *Engine) Execute(w io.Writer, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	return e.templates.ExecuteTemplate(w, name, data)
}
