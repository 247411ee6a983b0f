package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"storybook-agent/internal/domain"
)

// Memory is an in-process story archive for local development. It mirrors
// the DynamoDB client's semantics but keeps nothing across restarts.
type Memory struct {
	mu      sync.Mutex
	meta    map[string]domain.ConversationMeta
	stories map[string][]domain.ArchivedStory
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		meta:    make(map[string]domain.ConversationMeta),
		stories: make(map[string][]domain.ArchivedStory),
		now:     time.Now,
	}
}

func (m *Memory) GetConversationTurnCount(_ context.Context, handle string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.meta[handle].Turns, nil
}

func (m *Memory) RecordTurn(_ context.Context, handle string) (int, error) {
	if strings.TrimSpace(handle) == "" {
		return 0, errors.New("repository: RecordTurn: conversation handle is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bump(handle), nil
}

func (m *Memory) SaveStory(_ context.Context, story domain.ArchivedStory) error {
	if strings.TrimSpace(story.ConversationHandle) == "" {
		return errors.New("repository: SaveStory: conversation handle is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if story.CreatedAt.IsZero() {
		story.CreatedAt = m.now().UTC()
	}
	story.Profile = domain.StoryProfile{}.Merge(story.Profile)
	m.stories[story.ConversationHandle] = append(m.stories[story.ConversationHandle], story)
	m.bump(story.ConversationHandle)
	return nil
}

// ListStories returns stories newest first, at most limit when limit > 0.
func (m *Memory) ListStories(_ context.Context, handle string, limit int) ([]domain.ArchivedStory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := m.stories[handle]
	out := make([]domain.ArchivedStory, 0, len(saved))
	for i := len(saved) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, saved[i])
	}
	return out, nil
}

// bump increments the turn counter. Callers hold mu.
func (m *Memory) bump(handle string) int {
	meta := m.meta[handle]
	meta.ConversationHandle = handle
	meta.Turns++
	meta.LastActivity = m.now().UTC()
	m.meta[handle] = meta
	return meta.Turns
}
