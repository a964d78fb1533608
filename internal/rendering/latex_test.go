package rendering

import (
	"strings"
	"testing"

	"github.com/jonathan/resume-pipeline/internal/compile"
	"github.com/jonathan/resume-pipeline/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() *types.ResumeDocument {
	return &types.ResumeDocument{
		Contact: types.Contact{
			Name:  "Ada Lovelace",
			Email: "ada@example.com",
			Phone: "555-0100",
			Links: []string{"github.com/ada_l"},
		},
		Summary: "Engineer with 10% more rigor & fewer bugs",
		Skills: []types.SkillGroup{
			{Category: "Languages", Items: []string{"Go", "C#", "SQL"}},
			{Items: nil},
		},
		Experience: []types.ExperienceEntry{
			{Company: "Acme", Role: "Senior Engineer", StartDate: "2021", Bullets: []string{"Cut p99 latency by 40%", "Owned $2M budget"}},
			{Company: "Acme", Role: "Engineer", StartDate: "2019", EndDate: "2021", Bullets: []string{"Built job_queue"}},
			{Company: "Globex", Role: "Intern", EndDate: "2018"},
		},
		Education: []types.EducationEntry{
			{Institution: "University of London", Degree: "BSc", Field: "Mathematics", EndDate: "2018"},
		},
		Certifications: []types.Certification{{Name: "CKA", Issuer: "CNCF", Date: "2022"}},
	}
}

func TestRenderLaTeX_EscapesAllUserText(t *testing.T) {
	r, err := NewRenderer(DefaultTemplate)
	require.NoError(t, err)

	out, err := r.RenderLaTeX(sampleDocument())
	require.NoError(t, err)

	assert.Contains(t, out, `\documentclass`)
	assert.Contains(t, out, `\end{document}`)
	assert.Contains(t, out, `10\% more rigor \& fewer bugs`)
	assert.Contains(t, out, `C\#`)
	assert.Contains(t, out, `\$2M budget`)
	assert.Contains(t, out, `job\_queue`)
	assert.Contains(t, out, `github.com/ada\_l`)
	assert.NoError(t, compile.CheckSource([]byte(out)))
}

func TestRenderLaTeX_LeadingBracketIsNotAnArgument(t *testing.T) {
	r, err := NewRenderer(DefaultTemplate)
	require.NoError(t, err)

	doc := sampleDocument()
	doc.Education[0].Degree = "[Hons] BSc"
	doc.Skills = append(doc.Skills, types.SkillGroup{Items: []string{"[beta] Rust"}})
	doc.Experience[0].Bullets = []string{"[2x] throughput on the ingest path"}

	out, err := r.RenderLaTeX(doc)
	require.NoError(t, err)

	assert.Contains(t, out, "{[}Hons{]} BSc")
	assert.Contains(t, out, "{[}beta{]} Rust")
	assert.Contains(t, out, "{[}2x{]} throughput")
	assert.NotContains(t, out, `\\`+"\n[")
	assert.NotContains(t, out, `\item [`)
	assert.NotContains(t, out, "[Hons]")
	assert.NoError(t, compile.CheckSource([]byte(out)))
}

func TestRenderLaTeX_GroupsRolesByCompany(t *testing.T) {
	r, err := NewRenderer(DefaultTemplate)
	require.NoError(t, err)

	out, err := r.RenderLaTeX(sampleDocument())
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(out, `\textbf{Acme}`))
	assert.Contains(t, out, `\textit{Senior Engineer} \hfill 2021 -- Present`)
	assert.Contains(t, out, `\textit{Engineer} \hfill 2019 -- 2021`)
	assert.Contains(t, out, `BSc in Mathematics`)
	assert.Contains(t, out, `CKA, CNCF, 2022`)
}

func TestRenderLaTeX_OmitsEmptySections(t *testing.T) {
	r, err := NewRenderer(DefaultTemplate)
	require.NoError(t, err)

	out, err := r.RenderLaTeX(&types.ResumeDocument{
		Contact:    types.Contact{Name: "Ada"},
		Experience: []types.ExperienceEntry{{Company: "Acme", Role: "Engineer", Bullets: []string{"Shipped"}}},
	})
	require.NoError(t, err)

	assert.NotContains(t, out, `\section*{Summary}`)
	assert.NotContains(t, out, `\section*{Education}`)
	assert.NotContains(t, out, `\section*{Certifications}`)
	assert.Contains(t, out, `\section*{Experience}`)
}

func TestRenderLaTeX_Deterministic(t *testing.T) {
	r, err := NewRenderer(DefaultTemplate)
	require.NoError(t, err)

	a, err := r.RenderLaTeX(sampleDocument())
	require.NoError(t, err)
	b, err := r.RenderLaTeX(sampleDocument())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRenderLaTeX_NilDocument(t *testing.T) {
	r, err := NewRenderer(DefaultTemplate)
	require.NoError(t, err)

	_, err = r.RenderLaTeX(nil)
	assert.ErrorIs(t, err, ErrNilDocument)
}

func TestNewRenderer_UnknownTemplate(t *testing.T) {
	_, err := NewRenderer("missing.tex.tmpl")
	var renderErr *Error
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, "load", renderErr.Op)
	assert.Equal(t, "missing.tex.tmpl", renderErr.Template)
}

func TestDateRange(t *testing.T) {
	assert.Equal(t, "2019 -- 2021", dateRange("2019", "2021"))
	assert.Equal(t, "2019 -- Present", dateRange("2019", ""))
	assert.Equal(t, "2018", dateRange("", "2018"))
	assert.Equal(t, "", dateRange("", ""))
}
