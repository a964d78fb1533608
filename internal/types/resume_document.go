package types

// ProfileSnapshot is the candidate profile as captured when the job was submitted
type ProfileSnapshot struct {
	Name           string            `json:"name" validate:"required"`
	Email          string            `json:"email,omitempty" validate:"omitempty,email"`
	Phone          string            `json:"phone,omitempty"`
	Location       string            `json:"location,omitempty"`
	Links          []string          `json:"links,omitempty"`
	Summary        string            `json:"summary,omitempty"`
	Skills         []string          `json:"skills,omitempty"`
	Experience     []ExperienceEntry `json:"experience,omitempty"`
	Education      []EducationEntry  `json:"education,omitempty"`
	Certifications []Certification   `json:"certifications,omitempty"`
	ResumeText     string            `json:"resume_text" validate:"required"`
}

// Contact holds the resume header
type Contact struct {
	Name     string   `json:"name"`
	Email    string   `json:"email,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Location string   `json:"location,omitempty"`
	Links    []string `json:"links,omitempty"`
}

// SkillGroup is a labeled list of skills
type SkillGroup struct {
	Category string   `json:"category,omitempty"`
	Items    []string `json:"items"`
}

// ExperienceEntry is one role
type ExperienceEntry struct {
	Company   string   `json:"company"`
	Role      string   `json:"role"`
	Location  string   `json:"location,omitempty"`
	StartDate string   `json:"start_date,omitempty"`
	EndDate   string   `json:"end_date,omitempty"`
	Bullets   []string `json:"bullets"`
}

// EducationEntry is one degree or program
type EducationEntry struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree,omitempty"`
	Field       string `json:"field,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	Details     string `json:"details,omitempty"`
}

// Certification is a named credential
type Certification struct {
	Name   string `json:"name"`
	Issuer string `json:"issuer,omitempty"`
	Date   string `json:"date,omitempty"`
}

// ResumeDocument is the canonical structured resume produced by generation
type ResumeDocument struct {
	Contact        Contact           `json:"contact"`
	Summary        string            `json:"summary,omitempty"`
	Skills         []SkillGroup      `json:"skills,omitempty"`
	Experience     []ExperienceEntry `json:"experience"`
	Education      []EducationEntry  `json:"education,omitempty"`
	Certifications []Certification   `json:"certifications,omitempty"`
}

// IsEmpty reports whether the document carries no substantive content.
func (d *ResumeDocument) IsEmpty() bool {
	return d == nil || (len(d.Experience) == 0 && d.Summary == "")
}

// ContactFromProfile builds the resume header from a profile snapshot.
func ContactFromProfile(p ProfileSnapshot) Contact {
	return Contact{
		Name:     p.Name,
		Email:    p.Email,
		Phone:    p.Phone,
		Location: p.Location,
		Links:    append([]string(nil), p.Links...),
	}
}
