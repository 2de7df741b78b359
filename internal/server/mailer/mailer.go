// Package mailer renders and delivers the transactional emails: account
// activation, email re-verification and password reset.
package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

// Template identifiers.
const (
	TemplateAccountActivation = "account_activation"
	TemplateVerifyEmail       = "verify_email"
	TemplateResetPassword     = "reset_password"
)

//go:embed templates
var templatesFS embed.FS

// Context is the data a template is rendered with.
type Context struct {
	Name       string
	Email      string
	Token      string
	URL        string
	ValidFor   string
	JustJoined bool
}

// Sender delivers a templated email to one recipient.
type Sender interface {
	Send(ctx context.Context, template string, data Context, to string) error
}

// Email is a rendered message.
type Email struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

type templateSet struct {
	subject *texttemplate.Template
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

// Renderer turns a template id and Context into an Email.
type Renderer struct {
	from          string
	subjectPrefix string
	templates     map[string]templateSet
}

func NewRenderer(from, subjectPrefix string) (*Renderer, error) {
	r := &Renderer{from: from, subjectPrefix: subjectPrefix, templates: map[string]templateSet{}}
	for _, name := range []string{TemplateAccountActivation, TemplateVerifyEmail, TemplateResetPassword} {
		dir := "templates/" + name + "/"
		subject, err := texttemplate.ParseFS(templatesFS, dir+"subject.txt")
		if err != nil {
			return nil, err
		}
		text, err := texttemplate.ParseFS(templatesFS, dir+"body.txt")
		if err != nil {
			return nil, err
		}
		html, err := htmltemplate.ParseFS(templatesFS, dir+"body.html")
		if err != nil {
			return nil, err
		}
		r.templates[name] = templateSet{subject: subject, text: text, html: html}
	}
	return r, nil
}

func (r *Renderer) Render(template string, data Context, to string) (*Email, error) {
	set, ok := r.templates[template]
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", template)
	}

	var subject, text, html bytes.Buffer
	if err := set.subject.Execute(&subject, data); err != nil {
		return nil, err
	}
	if err := set.text.Execute(&text, data); err != nil {
		return nil, err
	}
	if err := set.html.Execute(&html, data); err != nil {
		return nil, err
	}

	// headers cannot carry newlines
	subj := strings.Join(strings.Fields(subject.String()), " ")
	if r.subjectPrefix != "" {
		subj = r.subjectPrefix + " " + subj
	}

	return &Email{From: r.from, To: to, Subject: subj, Text: text.String(), HTML: html.String()}, nil
}
