package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResumeDocumentSchema_ValidJSON(t *testing.T) {
	data, err := Load(ResumeDocument)
	require.NoError(t, err)

	var schemaObj map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &schemaObj))

	assert.Equal(t, "object", schemaObj["type"])
	assert.Contains(t, schemaObj, "$schema")
	assert.Contains(t, schemaObj, "properties")
	assert.Contains(t, schemaObj, "definitions")
}

func TestLoad_Unknown(t *testing.T) {
	_, err := Load("missing.schema.json")
	assert.Error(t, err)
	assert.Panics(t, func() { MustLoad("missing.schema.json") })
}
