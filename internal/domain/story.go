package domain

import "time"

// StoryTextKey is the profile key carrying the trimmed narrative.
const StoryTextKey = "storyText"

// StoryProfile is the partial, accumulated set of story preferences. Keys are
// absent until discovered; values are whatever JSON the assistant emitted.
type StoryProfile map[string]any

// Merge shallow-merges other into p. Existing keys are overwritten, nothing is
// ever removed.
func (p StoryProfile) Merge(other StoryProfile) StoryProfile {
	if p == nil {
		p = StoryProfile{}
	}
	for k, v := range other {
		p[k] = v
	}
	return p
}

// StoryText returns the narrative stored under storyText, if any.
func (p StoryProfile) StoryText() string {
	return p.String(StoryTextKey)
}

// ChildName returns the childName field, if it is a string.
func (p StoryProfile) ChildName() string {
	return p.String("childName")
}

// String returns the value of key when it holds a string.
func (p StoryProfile) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// StoryFields documents the preference keys the assistant is asked to emit.
// It only drives the JSON schema sent with each run; extraction keeps
// whatever keys the assistant actually returns.
type StoryFields struct {
	ChildName       string   `json:"childName,omitempty" jsonschema_description:"The child's first name"`
	ChildAge        int      `json:"childAge,omitempty" jsonschema_description:"The child's age in years"`
	MainCharacter   string   `json:"mainCharacter,omitempty" jsonschema_description:"Who the story is about"`
	Setting         string   `json:"setting,omitempty" jsonschema_description:"Where the story takes place"`
	StoryType       string   `json:"storyType,omitempty" jsonschema_description:"Kind of story, e.g. adventure or bedtime"`
	MoralLesson     string   `json:"moralLesson,omitempty" jsonschema_description:"The lesson the story should teach"`
	Interests       []string `json:"interests,omitempty" jsonschema_description:"Things the child enjoys"`
	OtherCharacters []string `json:"otherCharacters,omitempty" jsonschema_description:"Supporting characters"`
	StoryLength     string   `json:"storyLength,omitempty" jsonschema:"enum=short,enum=medium,enum=long" jsonschema_description:"Desired story length"`
}

// ExtractionResult is derived from a single assistant message.
type ExtractionResult struct {
	Success      bool         `json:"success"`
	RawMessage   string       `json:"message"`
	DisplayText  string       `json:"-"`
	IsComplete   bool         `json:"isComplete"`
	StoryProfile StoryProfile `json:"storyProfile"`
}

// ArchivedStory is a completed story kept in the archive table.
type ArchivedStory struct {
	ConversationHandle string       `json:"conversationHandle"`
	StoryText          string       `json:"storyText"`
	Profile            StoryProfile `json:"storyProfile,omitempty"`
	CreatedAt          time.Time    `json:"createdAt"`
}

// ConversationMeta is the per-conversation turn counter.
type ConversationMeta struct {
	ConversationHandle string
	Turns              int
	LastActivity       time.Time
}

// TurnResult is the client-facing outcome of one send-message turn.
type TurnResult struct {
	Success      bool         `json:"success"`
	Message      string       `json:"message"`
	Story        string       `json:"story,omitempty"`
	StoryProfile StoryProfile `json:"storyProfile,omitempty"`
	IsComplete   bool         `json:"isComplete"`
}
