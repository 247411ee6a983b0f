package usecase

import (
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"

	"storybook-agent/internal/domain"
	"storybook-agent/internal/story"
)

func generateSchema[T any]() string {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	raw, err := json.Marshal(r.Reflect(v))
	if err != nil {
		panic("usecase: reflect schema: " + err.Error())
	}
	return string(raw)
}

var storyFieldsSchema = generateSchema[domain.StoryFields]()

// buildRunInstructions returns the per-run instructions appended to the
// assistant's own prompt: the preferences gathered so far and the reply
// contract the extractor relies on.
func buildRunInstructions(profile domain.StoryProfile) string {
	return strings.Join([]string{
		"Current story data:",
		currentStoryData(profile),
		"",
		"Output Contract:",
		outputContract(),
	}, "\n")
}

// currentStoryData renders the known preferences without the narrative
// itself, which would only repeat the previous story back to the assistant.
func currentStoryData(profile domain.StoryProfile) string {
	known := make(domain.StoryProfile, len(profile))
	for k, v := range profile {
		if k == domain.StoryTextKey {
			continue
		}
		known[k] = v
	}
	raw, err := json.Marshal(known)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func outputContract() string {
	return strings.Join([]string{
		"1) While preferences are still missing, ask one friendly question at a time.",
		"2) When you write the finished story, put the story text between " + story.StartMarker + " and " + story.EndMarker + ".",
		"3) After the end marker, add one flat JSON object with the story preferences. Do not nest objects inside it.",
		"4) The JSON object must follow this schema: " + storyFieldsSchema,
	}, "\n")
}
