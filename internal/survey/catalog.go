package survey

import (
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// TemplateQuestion is a question as written in a catalog file
type TemplateQuestion struct {
	Code     string `yaml:"code"`
	Type     string `yaml:"type"` // "rating", "yesno", "text", "longtext"
	Text     string `yaml:"text"`
	MinValue int    `yaml:"min,omitempty"`
	MaxValue int    `yaml:"max,omitempty"`
}

type Template struct {
	ID        string             `yaml:"id"`
	Name      string             `yaml:"name"`
	Questions []TemplateQuestion `yaml:"questions"`
}

type SurveyEntry struct {
	ID             string `yaml:"id,omitempty"`
	Template       string `yaml:"template"`
	Title          string `yaml:"title"`
	Organization   string `yaml:"organization"`
	RecipientEmail string `yaml:"recipient_email"`
	AcceptsReplies *bool  `yaml:"accepts_replies,omitempty"` // Defaults to true
}

func (e SurveyEntry) RepliesAccepted() bool {
	return e.AcceptsReplies == nil || *e.AcceptsReplies
}

// Catalog is the YAML form of templates and surveys imported into the store
type Catalog struct {
	Templates []Template    `yaml:"templates"`
	Surveys   []SurveyEntry `yaml:"surveys"`
}

func LoadFromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	sanitizeCatalog(&c)
	return &c, nil
}

func LoadFromDir(dir string) (*Catalog, error) {
	c := &Catalog{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".yaml") && !strings.HasSuffix(entry.Name(), ".yml") {
			continue
		}

		partial, err := LoadFromFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", entry.Name(), err)
		}

		c.Templates = append(c.Templates, partial.Templates...)
		c.Surveys = append(c.Surveys, partial.Surveys...)
	}

	return c, nil
}

func sanitizeCatalog(c *Catalog) {
	for i := range c.Templates {
		for j := range c.Templates[i].Questions {
			q := &c.Templates[i].Questions[j]
			q.Code = NormalizeCode(q.Code)
			q.Type = strings.ToLower(strings.TrimSpace(q.Type))
			if q.Type == string(TypeRating) {
				if q.MinValue == 0 {
					q.MinValue = 1
				}
				if q.MaxValue == 0 {
					q.MaxValue = 10
				}
			}
		}
	}
	for i := range c.Surveys {
		c.Surveys[i].RecipientEmail = strings.TrimSpace(c.Surveys[i].RecipientEmail)
	}
}

// Validate reports the first structural problem in the catalog
func (c *Catalog) Validate() error {
	for _, t := range c.Templates {
		if t.ID == "" {
			return fmt.Errorf("template %q: id is required", t.Name)
		}
		seen := make(map[string]bool, len(t.Questions))
		for _, q := range t.Questions {
			if q.Code == "" {
				return fmt.Errorf("template %s: question code is required", t.ID)
			}
			if seen[q.Code] {
				return fmt.Errorf("template %s: duplicate question code %s", t.ID, q.Code)
			}
			seen[q.Code] = true
			if _, err := ParseQuestionType(q.Type); err != nil {
				return fmt.Errorf("template %s, question %s: %w", t.ID, q.Code, err)
			}
		}
	}
	for _, s := range c.Surveys {
		if c.FindTemplate(s.Template) == nil {
			return fmt.Errorf("survey %q: unknown template %q", s.Title, s.Template)
		}
		if s.RecipientEmail != "" {
			if _, err := mail.ParseAddress(s.RecipientEmail); err != nil {
				return fmt.Errorf("survey %q: invalid recipient_email: %w", s.Title, err)
			}
		}
	}
	return nil
}

func (c *Catalog) FindTemplate(id string) *Template {
	id = strings.ToLower(id)
	for i := range c.Templates {
		if strings.ToLower(c.Templates[i].ID) == id {
			return &c.Templates[i]
		}
	}
	return nil
}

// AssignIDs gives every survey without an id a fresh reply token and
// reports how many were assigned.
func (c *Catalog) AssignIDs() int {
	n := 0
	for i := range c.Surveys {
		if c.Surveys[i].ID == "" {
			c.Surveys[i].ID = uuid.NewString()
			n++
		}
	}
	return n
}

func (c *Catalog) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to serialize catalog: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// SaveWithBackup saves the catalog to file, creating a backup first
func (c *Catalog) SaveWithBackup(path string) error {
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read file for backup: %w", err)
		}
		if err := os.WriteFile(path+".bak", data, 0644); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
	}

	return c.Save(path)
}
