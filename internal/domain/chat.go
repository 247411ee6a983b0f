package domain

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one entry of the client-visible, append-only message log.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// HistoryMessage is a ChatMessage annotated with the extraction result of its
// own text.
type HistoryMessage struct {
	ChatMessage
	Story        string       `json:"story,omitempty"`
	StoryProfile StoryProfile `json:"storyProfile,omitempty"`
	IsComplete   bool         `json:"isComplete"`
}

// RunStatus is the remote run state as reported by the assistant gateway.
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCancelling     RunStatus = "cancelling"
	RunCancelled      RunStatus = "cancelled"
	RunFailed         RunStatus = "failed"
	RunCompleted      RunStatus = "completed"
	RunIncomplete     RunStatus = "incomplete"
	RunExpired        RunStatus = "expired"
)

// Run is a single assistant invocation over a thread.
type Run struct {
	ID       string
	ThreadID string
	Status   RunStatus
}

// ThreadMessage is a message as stored in the remote thread.
type ThreadMessage struct {
	ID        string
	Role      Role
	Text      string
	CreatedAt int64
}
