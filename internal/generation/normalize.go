package generation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/resume-pipeline/internal/llm"
	"github.com/jonathan/resume-pipeline/internal/schemas"
	"github.com/jonathan/resume-pipeline/internal/types"
)

// Normalize decodes a provider's raw output into the canonical document.
// Contact details always come from the profile, never from the provider.
func Normalize(raw string, profile types.ProfileSnapshot) (*types.ResumeDocument, error) {
	cleaned := strings.TrimSpace(llm.CleanJSONBlock(raw))
	if cleaned == "" {
		return nil, &InvalidOutputError{Message: "empty response"}
	}
	if err := schemas.ValidateResumeDraft([]byte(cleaned)); err != nil {
		return nil, &InvalidOutputError{Message: "response does not match resume schema", Cause: err}
	}

	var draft map[string]any
	if err := json.Unmarshal([]byte(cleaned), &draft); err != nil {
		return nil, &InvalidOutputError{Message: "response is not a JSON object", Cause: err}
	}

	doc := &types.ResumeDocument{
		Contact:        types.ContactFromProfile(profile),
		Summary:        collapseSpaces(str(draft["summary"])),
		Skills:         normalizeSkills(draft["skills"]),
		Experience:     normalizeExperience(firstPresent(draft, "experience", "work_experience")),
		Education:      normalizeEducation(draft["education"]),
		Certifications: normalizeCertifications(draft["certifications"]),
	}
	if doc.IsEmpty() {
		return nil, &InvalidOutputError{Message: "response has neither experience nor summary"}
	}
	return doc, nil
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%g", t))
	default:
		return ""
	}
}

func field(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := str(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func strList(v any) []string {
	var out []string
	switch t := v.(type) {
	case string:
		if s := collapseSpaces(t); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, item := range t {
			if s := collapseSpaces(str(item)); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normalizeSkills(v any) []types.SkillGroup {
	var groups []types.SkillGroup
	switch t := v.(type) {
	case []any:
		var flat []string
		for _, item := range t {
			switch it := item.(type) {
			case string:
				if s := collapseSpaces(it); s != "" {
					flat = append(flat, s)
				}
			case map[string]any:
				g := types.SkillGroup{Category: field(it, "category", "name"), Items: strList(it["items"])}
				if len(g.Items) > 0 {
					groups = append(groups, g)
				}
			}
		}
		if len(flat) > 0 {
			groups = append([]types.SkillGroup{{Items: flat}}, groups...)
		}
	case map[string]any:
		categories := make([]string, 0, len(t))
		for k := range t {
			categories = append(categories, k)
		}
		sort.Strings(categories)
		for _, c := range categories {
			if items := strList(t[c]); len(items) > 0 {
				groups = append(groups, types.SkillGroup{Category: strings.TrimSpace(c), Items: items})
			}
		}
	}
	return groups
}

func normalizeExperience(v any) []types.ExperienceEntry {
	list, _ := v.([]any)
	entries := make([]types.ExperienceEntry, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		e := types.ExperienceEntry{
			Company:   field(m, "company", "employer"),
			Role:      field(m, "role", "title"),
			Location:  field(m, "location"),
			StartDate: field(m, "start_date"),
			EndDate:   field(m, "end_date"),
			Bullets:   strList(firstPresent(m, "bullets", "highlights")),
		}
		if e.Company == "" && e.Role == "" && len(e.Bullets) == 0 {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

func normalizeEducation(v any) []types.EducationEntry {
	list, _ := v.([]any)
	var out []types.EducationEntry
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		e := types.EducationEntry{
			Institution: field(m, "institution", "school"),
			Degree:      field(m, "degree"),
			Field:       field(m, "field"),
			StartDate:   field(m, "start_date"),
			EndDate:     field(m, "end_date"),
			Details:     strings.Join(strList(m["details"]), "; "),
		}
		if e.Institution == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}

func normalizeCertifications(v any) []types.Certification {
	list, _ := v.([]any)
	var out []types.Certification
	for _, item := range list {
		switch it := item.(type) {
		case string:
			if s := collapseSpaces(it); s != "" {
				out = append(out, types.Certification{Name: s})
			}
		case map[string]any:
			c := types.Certification{Name: field(it, "name"), Issuer: field(it, "issuer"), Date: field(it, "date")}
			if c.Name != "" {
				out = append(out, c)
			}
		}
	}
	return out
}
