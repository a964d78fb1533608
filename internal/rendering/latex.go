package rendering

import (
	"embed"
	"strings"
	"text/template"

	"github.com/jonathan/resume-pipeline/internal/types"
)

//go:embed templates/*.tmpl
var templateFiles embed.FS

// DefaultTemplate is the embedded one-column resume layout
const DefaultTemplate = "resume.tex.tmpl"

// TemplateData represents the data structure passed to the LaTeX template.
// Every string field is already escaped.
type TemplateData struct {
	Name           string
	ContactItems   []string
	Summary        string
	Skills         []SkillLine
	Companies      []CompanySection
	Education      []EducationLine
	Certifications []string
}

// SkillLine is one rendered skill group
type SkillLine struct {
	Category string
	Items    string
}

// CompanySection represents a company with one or more roles
type CompanySection struct {
	Company  string
	Location string
	Roles    []RoleSection
}

// RoleSection represents a role within a company
type RoleSection struct {
	Role      string
	DateRange string
	Bullets   []string
}

// EducationLine is one rendered education entry
type EducationLine struct {
	Institution string
	Degree      string
	DateRange   string
	Details     string
}

// Renderer executes a parsed LaTeX template
type Renderer struct {
	name string
	tmpl *template.Template
}

// NewRenderer parses an embedded template by file name
func NewRenderer(name string) (*Renderer, error) {
	content, err := templateFiles.ReadFile("templates/" + name)
	if err != nil {
		return nil, &Error{Op: "load", Template: name, Err: err}
	}

	// [[ ]] delimiters keep LaTeX braces readable
	tmpl, err := template.New(name).Delims("[[", "]]").Funcs(template.FuncMap{
		"join": strings.Join,
	}).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, &Error{Op: "parse", Template: name, Err: err}
	}
	return &Renderer{name: name, tmpl: tmpl}, nil
}

// Name returns the template file name
func (r *Renderer) Name() string {
	return r.name
}

// RenderLaTeX renders a resume document to LaTeX source
func (r *Renderer) RenderLaTeX(doc *types.ResumeDocument) (string, error) {
	if doc == nil {
		return "", ErrNilDocument
	}

	var result strings.Builder
	if err := r.tmpl.Execute(&result, BuildTemplateData(doc)); err != nil {
		return "", &Error{Op: "execute", Template: r.name, Err: err}
	}
	return result.String(), nil
}

// BuildTemplateData escapes a document into template-ready sections
func BuildTemplateData(doc *types.ResumeDocument) *TemplateData {
	data := &TemplateData{
		Name:    EscapeLaTeX(doc.Contact.Name),
		Summary: EscapeLaTeX(doc.Summary),
	}

	for _, item := range append([]string{doc.Contact.Email, doc.Contact.Phone, doc.Contact.Location}, doc.Contact.Links...) {
		if item = strings.TrimSpace(item); item != "" {
			data.ContactItems = append(data.ContactItems, EscapeLaTeX(item))
		}
	}

	for _, group := range doc.Skills {
		if len(group.Items) == 0 {
			continue
		}
		data.Skills = append(data.Skills, SkillLine{
			Category: EscapeLaTeX(group.Category),
			Items:    EscapeLaTeX(strings.Join(group.Items, ", ")),
		})
	}

	data.Companies = groupByCompany(doc.Experience)

	for _, edu := range doc.Education {
		degree := edu.Degree
		if edu.Field != "" {
			degree = strings.TrimSpace(strings.Join([]string{edu.Degree, edu.Field}, " in "))
			if edu.Degree == "" {
				degree = edu.Field
			}
		}
		data.Education = append(data.Education, EducationLine{
			Institution: EscapeLaTeX(edu.Institution),
			Degree:      EscapeLaTeX(degree),
			DateRange:   EscapeLaTeX(dateRange(edu.StartDate, edu.EndDate)),
			Details:     EscapeLaTeX(edu.Details),
		})
	}

	for _, cert := range doc.Certifications {
		parts := []string{cert.Name}
		if cert.Issuer != "" {
			parts = append(parts, cert.Issuer)
		}
		if cert.Date != "" {
			parts = append(parts, cert.Date)
		}
		data.Certifications = append(data.Certifications, EscapeLaTeX(strings.Join(parts, ", ")))
	}

	return data
}

// groupByCompany merges consecutive roles at the same company under one heading
func groupByCompany(entries []types.ExperienceEntry) []CompanySection {
	var sections []CompanySection
	for _, entry := range entries {
		role := RoleSection{
			Role:      EscapeLaTeX(entry.Role),
			DateRange: EscapeLaTeX(dateRange(entry.StartDate, entry.EndDate)),
		}
		for _, b := range entry.Bullets {
			role.Bullets = append(role.Bullets, EscapeLaTeX(b))
		}

		company := EscapeLaTeX(entry.Company)
		if n := len(sections); n > 0 && sections[n-1].Company == company {
			sections[n-1].Roles = append(sections[n-1].Roles, role)
			continue
		}
		sections = append(sections, CompanySection{
			Company:  company,
			Location: EscapeLaTeX(entry.Location),
			Roles:    []RoleSection{role},
		})
	}
	return sections
}

func dateRange(start, end string) string {
	switch {
	case start != "" && end != "":
		return start + " -- " + end
	case start != "":
		return start + " -- Present"
	default:
		return end
	}
}
