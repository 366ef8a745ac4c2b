package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates
var content embed.FS

// Renderer turns jobs into messages.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded email templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(content, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing email templates: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

// Render builds the message for a job.
func (r *Renderer) Render(job *Job) (Message, error) {
	switch job.Kind {
	case KindRegistration:
		var html bytes.Buffer
		if err := r.templates.ExecuteTemplate(&html, "registration.html", job); err != nil {
			return Message{}, fmt.Errorf("rendering registration email: %w", err)
		}
		return Message{
			To:      job.To,
			ToName:  job.Username,
			Subject: "Successfully signed up",
			Text:    fmt.Sprintf("Hi %s! You have successfully signed up to the Stores REST API.", job.Username),
			HTML:    html.String(),
		}, nil
	}
	return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, job.Kind)
}
