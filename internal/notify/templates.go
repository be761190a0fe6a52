package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
	_ "time/tzdata"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	TemplateRequestReceived  = "request_received"
	TemplateRequestAccepted  = "request_accepted"
	TemplateRequestRejected  = "request_rejected"
	TemplateDetailsReceived  = "details_received"
	TemplateRequestApproved  = "request_approved"
	TemplateRequestCancelled = "request_cancelled"
	TemplateEntrySubmitted   = "entry_submitted"
)

var berlin = loadBerlin()

func loadBerlin() *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		return time.UTC
	}
	return loc
}

var funcs = map[string]interface{}{
	"datum": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.In(berlin).Format("02.01.2006 15:04")
	},
	"datumPtr": func(t *time.Time) string {
		if t == nil || t.IsZero() {
			return "-"
		}
		return t.In(berlin).Format("02.01.2006 15:04")
	},
}

// Renderer turns a named template into subject, HTML and plain text.
type Renderer struct {
	text map[string]*texttemplate.Template
	html map[string]*htmltemplate.Template
}

func NewRenderer() (*Renderer, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, err
	}
	r := &Renderer{
		text: make(map[string]*texttemplate.Template),
		html: make(map[string]*htmltemplate.Template),
	}
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".tmpl")
		raw, err := templateFS.ReadFile("templates/" + e.Name())
		if err != nil {
			return nil, err
		}
		tt, err := texttemplate.New(name).Funcs(funcs).Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", e.Name(), err)
		}
		ht, err := htmltemplate.New(name).Funcs(funcs).Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", e.Name(), err)
		}
		r.text[name] = tt
		r.html[name] = ht
	}
	return r, nil
}

func (r *Renderer) Render(name string, data interface{}) (subject, htmlBody, textBody string, err error) {
	tt, ok := r.text[name]
	if !ok {
		return "", "", "", fmt.Errorf("unknown email template %q", name)
	}
	var buf bytes.Buffer
	if err := tt.ExecuteTemplate(&buf, "subject", data); err != nil {
		return "", "", "", fmt.Errorf("render subject: %w", err)
	}
	subject = strings.TrimSpace(buf.String())

	buf.Reset()
	if err := tt.ExecuteTemplate(&buf, "text", data); err != nil {
		return "", "", "", fmt.Errorf("render text: %w", err)
	}
	textBody = strings.TrimSpace(buf.String())

	buf.Reset()
	if err := r.html[name].ExecuteTemplate(&buf, "html", data); err != nil {
		return "", "", "", fmt.Errorf("render html: %w", err)
	}
	return subject, buf.String(), textBody, nil
}
