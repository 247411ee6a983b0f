package usecase

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"storybook-agent/internal/domain"
)

func TestBuildRunInstructions_OmitsStoryText(t *testing.T) {
	out := buildRunInstructions(domain.StoryProfile{"childName": "Mia", "storyText": "Once upon a time"})

	require.True(t, strings.HasPrefix(out, "Current story data:\n{\"childName\":\"Mia\"}\n"))
	require.NotContains(t, out, "Once upon a time")
	require.Contains(t, out, "Output Contract:")
	require.Contains(t, out, "[STORY_START]")
	require.Contains(t, out, "[STORY_END]")
}

func TestBuildRunInstructions_EmptyProfile(t *testing.T) {
	out := buildRunInstructions(nil)
	require.Contains(t, out, "Current story data:\n{}\n")
}

func TestStoryFieldsSchema(t *testing.T) {
	var schema struct {
		Type                 string                     `json:"type"`
		Properties           map[string]json.RawMessage `json:"properties"`
		AdditionalProperties *bool                      `json:"additionalProperties"`
	}
	require.NoError(t, json.Unmarshal([]byte(storyFieldsSchema), &schema))
	require.Equal(t, "object", schema.Type)
	require.NotNil(t, schema.AdditionalProperties)
	require.False(t, *schema.AdditionalProperties)
	for _, key := range []string{"childName", "childAge", "mainCharacter", "setting", "storyType", "moralLesson", "interests", "otherCharacters", "storyLength"} {
		require.Contains(t, schema.Properties, key)
	}
	require.NotContains(t, schema.Properties, "storyText")
	require.Contains(t, string(schema.Properties["storyLength"]), `"enum":["short","medium","long"]`)
}
