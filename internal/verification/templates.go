package verification

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/aggiex/accelerator/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	layoutTemplatePath = "templates/layout.html.tmpl"
	defaultFirstName   = "there"
)

// TemplateSet is the pair of emails sent to a contact: the verification request and the confirmation.
type TemplateSet struct {
	Name      string
	Welcome   EmailTemplate
	Confirmed EmailTemplate
}

// EmailTemplate renders one email in plain text and HTML.
type EmailTemplate struct {
	name    string
	subject string
	heading string
	tagline string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

// RenderedEmail is a rendered EmailTemplate.
type RenderedEmail struct {
	Subject string
	Text    string
	HTML    string
}

type templateData struct {
	Heading         string
	Tagline         string
	FirstName       string
	VerificationURL string
}

var (
	acceleratorTemplates = TemplateSet{
		Name:      "accelerator",
		Welcome:   mustEmailTemplate("accelerator_welcome", "🚀 Welcome to AggieX Accelerator - Verify Your Email", "Welcome to AggieX!", "Texas A&M's Premier Startup Accelerator"),
		Confirmed: mustEmailTemplate("accelerator_confirmed", "🎉 Email Verified - Welcome to AggieX Accelerator!", "Email Verified!", "Welcome to AggieX Accelerator"),
	}
	communityTemplates = TemplateSet{
		Name:      "community",
		Welcome:   mustEmailTemplate("community_welcome", "🎙️ Welcome to AggieX Podcast - Verify Your Email", "Welcome to AggieX Podcast!", "The Voice of Aggie Innovation"),
		Confirmed: mustEmailTemplate("community_confirmed", "🎉 Email Verified - Welcome to AggieX Community!", "Email Verified!", "Welcome to AggieX Community"),
	}
)

func mustEmailTemplate(name string, subject string, heading string, tagline string) EmailTemplate {
	textPath := fmt.Sprintf("templates/%s.txt.tmpl", name)
	htmlPath := fmt.Sprintf("templates/%s.html.tmpl", name)
	return EmailTemplate{
		name:    name,
		subject: subject,
		heading: heading,
		tagline: tagline,
		text:    texttemplate.Must(texttemplate.ParseFS(templateFS, textPath)),
		html:    htmltemplate.Must(htmltemplate.ParseFS(templateFS, layoutTemplatePath, htmlPath)),
	}
}

// SelectTemplates picks the accelerator emails for applicants and the community emails for everyone else.
func SelectTemplates(source string) TemplateSet {
	if source == model.ContactSourceApplication {
		return acceleratorTemplates
	}
	return communityTemplates
}

// Name identifies the template in logs and metrics.
func (emailTemplate EmailTemplate) Name() string {
	return emailTemplate.name
}

// Render fills the template. A blank first name is addressed as "there".
func (emailTemplate EmailTemplate) Render(firstName string, verificationURL string) (RenderedEmail, error) {
	if firstName == "" {
		firstName = defaultFirstName
	}
	data := templateData{
		Heading:         emailTemplate.heading,
		Tagline:         emailTemplate.tagline,
		FirstName:       firstName,
		VerificationURL: verificationURL,
	}

	var textBuffer bytes.Buffer
	if err := emailTemplate.text.Execute(&textBuffer, data); err != nil {
		return RenderedEmail{}, fmt.Errorf("render %s text: %w", emailTemplate.name, err)
	}
	var htmlBuffer bytes.Buffer
	if err := emailTemplate.html.ExecuteTemplate(&htmlBuffer, emailTemplate.name+".html.tmpl", data); err != nil {
		return RenderedEmail{}, fmt.Errorf("render %s html: %w", emailTemplate.name, err)
	}
	return RenderedEmail{Subject: emailTemplate.subject, Text: textBuffer.String(), HTML: htmlBuffer.String()}, nil
}
