package generation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/resume-pipeline/internal/types"
)

// Limits are the one-page capacity bounds applied to every document
type Limits struct {
	MaxExperienceEntries int `json:"max_experience_entries"`
	MaxBulletsPerRole    int `json:"max_bullets_per_role"`
	MaxBulletChars       int `json:"max_bullet_chars"`
	MaxSummaryWords      int `json:"max_summary_words"`
	MaxSkillsPerGroup    int `json:"max_skills_per_group"`
	MaxSkillGroups       int `json:"max_skill_groups"`
}

// DefaultLimits returns the default capacity bounds
func DefaultLimits() Limits {
	return Limits{
		MaxExperienceEntries: 6,
		MaxBulletsPerRole:    5,
		MaxBulletChars:       240,
		MaxSummaryWords:      60,
		MaxSkillsPerGroup:    12,
		MaxSkillGroups:       6,
	}
}

// WithDefaults fills zero fields from DefaultLimits
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	if l.MaxExperienceEntries <= 0 {
		l.MaxExperienceEntries = d.MaxExperienceEntries
	}
	if l.MaxBulletsPerRole <= 0 {
		l.MaxBulletsPerRole = d.MaxBulletsPerRole
	}
	if l.MaxBulletChars <= 0 {
		l.MaxBulletChars = d.MaxBulletChars
	}
	if l.MaxSummaryWords <= 0 {
		l.MaxSummaryWords = d.MaxSummaryWords
	}
	if l.MaxSkillsPerGroup <= 0 {
		l.MaxSkillsPerGroup = d.MaxSkillsPerGroup
	}
	if l.MaxSkillGroups <= 0 {
		l.MaxSkillGroups = d.MaxSkillGroups
	}
	return l
}

// Apply trims doc in place to fit the limits and returns a description
// of every change made. The result depends only on doc and l.
func (l Limits) Apply(doc *types.ResumeDocument) []string {
	var repairs []string

	if words := strings.Fields(doc.Summary); len(words) > l.MaxSummaryWords {
		doc.Summary = strings.Join(words[:l.MaxSummaryWords], " ")
		repairs = append(repairs, fmt.Sprintf("summary: shortened from %d to %d words", len(words), l.MaxSummaryWords))
	}

	if n := len(doc.Experience); n > l.MaxExperienceEntries {
		doc.Experience = doc.Experience[:l.MaxExperienceEntries]
		repairs = append(repairs, fmt.Sprintf("experience: kept %d of %d entries", l.MaxExperienceEntries, n))
	}
	for i := range doc.Experience {
		e := &doc.Experience[i]
		if n := len(e.Bullets); n > l.MaxBulletsPerRole {
			e.Bullets = e.Bullets[:l.MaxBulletsPerRole]
			repairs = append(repairs, fmt.Sprintf("experience[%d] %s: kept %d of %d bullets", i, e.Company, l.MaxBulletsPerRole, n))
		}
		for j, b := range e.Bullets {
			if utf8.RuneCountInString(b) > l.MaxBulletChars {
				e.Bullets[j] = shorten(b, l.MaxBulletChars)
				repairs = append(repairs, fmt.Sprintf("experience[%d].bullets[%d]: shortened to %d characters", i, j, l.MaxBulletChars))
			}
		}
	}

	if n := len(doc.Skills); n > l.MaxSkillGroups {
		doc.Skills = doc.Skills[:l.MaxSkillGroups]
		repairs = append(repairs, fmt.Sprintf("skills: kept %d of %d groups", l.MaxSkillGroups, n))
	}
	for i := range doc.Skills {
		g := &doc.Skills[i]
		deduped := dedupe(g.Items)
		if removed := len(g.Items) - len(deduped); removed > 0 {
			repairs = append(repairs, fmt.Sprintf("skills[%d]: removed %d duplicate items", i, removed))
		}
		g.Items = deduped
		if n := len(g.Items); n > l.MaxSkillsPerGroup {
			g.Items = g.Items[:l.MaxSkillsPerGroup]
			repairs = append(repairs, fmt.Sprintf("skills[%d]: kept %d of %d items", i, l.MaxSkillsPerGroup, n))
		}
	}

	return repairs
}

// shorten cuts s to at most max runes, preferring a word boundary
func shorten(s string, max int) string {
	const ellipsis = "..."
	runes := []rune(s)
	cut := max - len(ellipsis)
	if cut <= 0 {
		return string(runes[:max])
	}
	head := string(runes[:cut])
	if idx := strings.LastIndex(head, " "); idx > len(head)/2 {
		head = head[:idx]
	}
	return strings.TrimRight(head, " ,;:-") + ellipsis
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := strings.ToLower(item)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}
