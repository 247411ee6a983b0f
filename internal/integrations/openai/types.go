package openai

import "storybook-agent/internal/domain"

type threadObject struct {
	ID string `json:"id"`
}

type messageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type runRequest struct {
	AssistantID            string           `json:"assistant_id"`
	AdditionalInstructions string           `json:"additional_instructions,omitempty"`
	AdditionalMessages     []messageRequest `json:"additional_messages,omitempty"`
}

type runObject struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	Status   string `json:"status"`
}

func (r runObject) toDomain(threadID string) domain.Run {
	if r.ThreadID != "" {
		threadID = r.ThreadID
	}
	return domain.Run{ID: r.ID, ThreadID: threadID, Status: domain.RunStatus(r.Status)}
}

type contentPart struct {
	Type string `json:"type"`
	Text *struct {
		Value string `json:"value"`
	} `json:"text,omitempty"`
}

type messageObject struct {
	ID        string        `json:"id"`
	Role      string        `json:"role"`
	CreatedAt int64         `json:"created_at"`
	Content   []contentPart `json:"content"`
}

// toDomain keeps the first content part when it is text; image and file
// parts yield an empty text.
func (m messageObject) toDomain() domain.ThreadMessage {
	var text string
	if len(m.Content) > 0 && m.Content[0].Type == "text" && m.Content[0].Text != nil {
		text = m.Content[0].Text.Value
	}
	return domain.ThreadMessage{
		ID:        m.ID,
		Role:      domain.Role(m.Role),
		Text:      text,
		CreatedAt: m.CreatedAt,
	}
}

type messageList struct {
	Data    []messageObject `json:"data"`
	HasMore bool            `json:"has_more"`
	LastID  string          `json:"last_id"`
}

func (l messageList) toDomain() []domain.ThreadMessage {
	msgs := make([]domain.ThreadMessage, 0, len(l.Data))
	for _, m := range l.Data {
		msgs = append(msgs, m.toDomain())
	}
	return msgs
}

// moderationRequest is the request shape for the Moderations endpoint.
type moderationRequest struct {
	Input string `json:"input"`
}

// moderationResponse is the minimal response shape for the Moderations endpoint.
type moderationResponse struct {
	Results []struct {
		Flagged bool `json:"flagged"`
	} `json:"results"`
}
