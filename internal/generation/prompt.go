package generation

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jonathan/resume-pipeline/internal/prompts"
	"github.com/jonathan/resume-pipeline/internal/types"
)

// BuildPrompt renders the drafting prompt for a request
func BuildPrompt(req Request, limits Limits) (string, error) {
	key := "generate-resume-tailored"
	if req.Mode == types.ModeConservative {
		key = "generate-resume-conservative"
	}

	profile, err := json.MarshalIndent(req.Profile, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal profile: %w", err)
	}

	return prompts.Render(prompts.GenerationFile, key, map[string]string{
		"Profile":         string(profile),
		"JobDescription":  quoteExternal("job description", req.JobDescription),
		"MaxExperience":   strconv.Itoa(limits.MaxExperienceEntries),
		"MaxBullets":      strconv.Itoa(limits.MaxBulletsPerRole),
		"MaxBulletChars":  strconv.Itoa(limits.MaxBulletChars),
		"MaxSummaryWords": strconv.Itoa(limits.MaxSummaryWords),
		"MaxSkillGroups":  strconv.Itoa(limits.MaxSkillGroups),
	})
}
