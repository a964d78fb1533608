package generation

import (
	"errors"
	"strings"
	"testing"

	"github.com/jonathan/resume-pipeline/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_TolerantShapes(t *testing.T) {
	raw := "Here is the resume:\n```json\n" + `{
		"summary": "  Builds   reliable systems ",
		"skills": ["Go", "Kubernetes", {"name": "Data", "items": ["Postgres", " "]}],
		"work_experience": [
			{"company": "Acme", "title": "SRE", "end_date": null, "highlights": ["On-call lead", ""]},
			{"bullets": []}
		],
		"education": [{"school": "MIT", "degree": "BS", "details": ["Honors", "Thesis"]}, {"degree": "orphan"}],
		"certifications": ["CKA", {"name": "AWS SA", "issuer": "AWS"}, {"name": " "}]
	}` + "\n```"

	doc, err := Normalize(raw, testProfile())
	require.NoError(t, err)

	assert.Equal(t, "Builds reliable systems", doc.Summary)
	assert.Equal(t, types.ContactFromProfile(testProfile()), doc.Contact)

	require.Len(t, doc.Skills, 2)
	assert.Equal(t, types.SkillGroup{Items: []string{"Go", "Kubernetes"}}, doc.Skills[0])
	assert.Equal(t, types.SkillGroup{Category: "Data", Items: []string{"Postgres"}}, doc.Skills[1])

	require.Len(t, doc.Experience, 1)
	assert.Equal(t, "SRE", doc.Experience[0].Role)
	assert.Equal(t, "", doc.Experience[0].EndDate)
	assert.Equal(t, []string{"On-call lead"}, doc.Experience[0].Bullets)

	require.Len(t, doc.Education, 1)
	assert.Equal(t, "MIT", doc.Education[0].Institution)
	assert.Equal(t, "Honors; Thesis", doc.Education[0].Details)

	assert.Equal(t, []types.Certification{{Name: "CKA"}, {Name: "AWS SA", Issuer: "AWS"}}, doc.Certifications)
}

func TestNormalize_SkillsByCategoryAreSorted(t *testing.T) {
	doc, err := Normalize(`{"summary": "x", "skills": {"Tools": ["Docker"], "Languages": ["Go"]}}`, testProfile())
	require.NoError(t, err)
	require.Len(t, doc.Skills, 2)
	assert.Equal(t, "Languages", doc.Skills[0].Category)
	assert.Equal(t, "Tools", doc.Skills[1].Category)
}

func TestNormalize_ProviderContactIgnored(t *testing.T) {
	doc, err := Normalize(`{"summary": "x", "contact": {"name": "Someone Else"}}`, testProfile())
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", doc.Contact.Name)
}

func TestNormalize_Invalid(t *testing.T) {
	for _, raw := range []string{"", "nothing useful", `[]`, `{"education": []}`, `{"summary": ""}`} {
		_, err := Normalize(raw, testProfile())
		var ioe *InvalidOutputError
		require.True(t, errors.As(err, &ioe), "input %q", raw)
	}
}

func TestLimits_Apply(t *testing.T) {
	long := strings.Repeat("optimized the deployment pipeline ", 12)
	doc := &types.ResumeDocument{
		Summary: strings.Repeat("word ", 70),
		Skills:  make([]types.SkillGroup, 8),
	}
	for i := range doc.Skills {
		doc.Skills[i] = types.SkillGroup{Items: []string{"a", "b"}}
	}
	doc.Skills[0].Items = strings.Split("a b c d e f g h i j k l m n", " ")
	for i := 0; i < 8; i++ {
		doc.Experience = append(doc.Experience, types.ExperienceEntry{Company: "C", Bullets: []string{"1", "2", "3", "4", "5", "6", "7"}})
	}
	doc.Experience[0].Bullets[0] = long

	l := DefaultLimits()
	repairs := l.Apply(doc)

	assert.Len(t, strings.Fields(doc.Summary), 60)
	assert.Len(t, doc.Experience, 6)
	for _, e := range doc.Experience {
		assert.Len(t, e.Bullets, 5)
	}
	b := doc.Experience[0].Bullets[0]
	assert.LessOrEqual(t, len([]rune(b)), 240)
	assert.True(t, strings.HasSuffix(b, "..."))
	assert.Len(t, doc.Skills, 6)
	assert.Len(t, doc.Skills[0].Items, 12)

	assert.Contains(t, repairs, "summary: shortened from 70 to 60 words")
	assert.Contains(t, repairs, "experience: kept 6 of 8 entries")
	assert.Contains(t, repairs, "experience[0].bullets[0]: shortened to 240 characters")
	assert.Contains(t, repairs, "skills: kept 6 of 8 groups")
	assert.Contains(t, repairs, "skills[0]: kept 12 of 14 items")
}

func TestLimits_ApplyIsDeterministic(t *testing.T) {
	build := func() *types.ResumeDocument {
		doc, err := Normalize(validDraft, testProfile())
		require.NoError(t, err)
		return doc
	}
	a, b := build(), build()
	l := Limits{MaxBulletsPerRole: 1}.WithDefaults()
	assert.Equal(t, l.Apply(a), l.Apply(b))
	assert.Equal(t, a, b)
	assert.Len(t, a.Experience[0].Bullets, 1)
}

func TestLimits_WithinBoundsUnchanged(t *testing.T) {
	doc, err := Normalize(`{"summary": "short", "experience": [{"company": "A", "role": "B", "bullets": ["x"]}]}`, testProfile())
	require.NoError(t, err)
	assert.Empty(t, DefaultLimits().Apply(doc))
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "hello...", shorten("hello world again", 11))
	assert.Equal(t, "ab", shorten("abcdef", 2))
}
