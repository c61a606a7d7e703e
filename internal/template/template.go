package template

import (
	"bytes"
	"embed"
	"fmt"
	"sort"
	"text/template"

	"github.com/enkat-io/enkat/internal/inbox"
	"github.com/enkat-io/enkat/internal/survey"
)

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

// DefaultLanguage is used when an unknown language is requested
const DefaultLanguage = "sv"

// InvitationData contains all data available to invitation templates
type InvitationData struct {
	SurveyID      string
	Title         string
	Organization  string
	RecipientName string
	Questions     []survey.Question
	SubjectTag    string
}

// Email represents a rendered email ready to send
type Email struct {
	Subject string
	Body    string
}

type language struct {
	subject string // Sprintf format: title, subject tag
	yesNo   string
}

var languages = map[string]language{
	"sv": {subject: "Enkät: %s (%s)", yesNo: "ja/nej"},
	"en": {subject: "Survey: %s (%s)", yesNo: "yes/no"},
}

// Engine handles invitation rendering
type Engine struct {
	templates map[string]*template.Template
}

func NewEngine() (*Engine, error) {
	e := &Engine{
		templates: make(map[string]*template.Template),
	}

	for name, lang := range languages {
		content, err := embeddedTemplates.ReadFile("templates/invitation_" + name + ".tmpl")
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded template %s: %w", name, err)
		}

		funcs := template.FuncMap{"scale": scaleFunc(lang)}
		tmpl, err := template.New(name).Funcs(funcs).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		e.templates[name] = tmpl
	}

	return e, nil
}

// scaleFunc describes the expected answer format of a question
func scaleFunc(lang language) func(q survey.Question) string {
	return func(q survey.Question) string {
		switch q.Type {
		case survey.TypeRating:
			return fmt.Sprintf("%d-%d", q.MinValue, q.MaxValue)
		case survey.TypeYesNo:
			return lang.yesNo
		}
		return ""
	}
}

// Render generates the invitation for one survey. The subject carries the
// survey id tag so replies can be routed even without the reply+ address.
func (e *Engine) Render(lang string, data InvitationData) (*Email, error) {
	if _, ok := e.templates[lang]; !ok {
		lang = DefaultLanguage
	}
	tmpl := e.templates[lang]

	data.SubjectTag = inbox.SubjectTag(data.SurveyID, lang)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	return &Email{
		Subject: fmt.Sprintf(languages[lang].subject, data.Title, data.SubjectTag),
		Body:    buf.String(),
	}, nil
}

// AvailableLanguages returns the languages invitations can be rendered in
func (e *Engine) AvailableLanguages() []string {
	names := make([]string, 0, len(e.templates))
	for name := range e.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
