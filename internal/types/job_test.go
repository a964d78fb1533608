//nolint:revive // types is a standard Go package name pattern
package types

import (
	"encoding/json"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_Predicates(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
		queued   bool
	}{
		{JobStatusPending, false, true},
		{JobStatusProcessing, false, false},
		{JobStatusRetrying, false, true},
		{JobStatusCompleted, true, false},
		{JobStatusFailed, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.queued, tt.status.IsQueued())
		})
	}
}

func TestJobPayload_Validation(t *testing.T) {
	validate := validator.New()

	valid := JobPayload{
		Profile: ProfileSnapshot{
			Name:       "Ada Lovelace",
			Email:      "ada@example.com",
			ResumeText: "Analytical engine programmer",
		},
		JobDescription: "Build distributed systems in Go",
		Mode:           ModeTailored,
	}
	require.NoError(t, validate.Struct(valid))

	t.Run("missing resume text", func(t *testing.T) {
		p := valid
		p.Profile.ResumeText = ""
		assert.Error(t, validate.Struct(p))
	})

	t.Run("bad email", func(t *testing.T) {
		p := valid
		p.Profile.Email = "not-an-email"
		assert.Error(t, validate.Struct(p))
	})

	t.Run("unknown mode", func(t *testing.T) {
		p := valid
		p.Mode = "creative"
		assert.Error(t, validate.Struct(p))
	})

	t.Run("empty mode allowed", func(t *testing.T) {
		p := valid
		p.Mode = ""
		assert.NoError(t, validate.Struct(p))
	})
}

func TestJobError_JSON(t *testing.T) {
	data, err := json.Marshal(JobError{Kind: ErrorKindCompilation, Message: "timed out", Stage: StageCompiling})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "compilation", decoded["kind"])
	assert.Equal(t, "compiling", decoded["stage"])
}
